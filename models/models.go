package models

// All returns every model in migration order
func All() []interface{} {
	return []interface{}{
		&Customer{},
		&User{},
		&Technician{},
		&CustomerPricing{},
		&CustomerRepairPreference{},
		&UnitRepairCount{},
		&Repair{},
		&RepairApproval{},
		&Reward{},
		&ReferralCode{},
		&Referral{},
		&RewardType{},
		&RewardOption{},
		&RewardRedemption{},
		&Notification{},
	}
}
