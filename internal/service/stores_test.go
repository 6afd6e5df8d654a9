package service

import "habit-quest/internal/service/servicetest"

var (
	_ UserStore          = servicetest.UserStore{}
	_ MissionStore       = servicetest.MissionStore{}
	_ ExpiryStore        = servicetest.MissionStore{}
	_ DailyLogStore      = servicetest.DailyLogStore{}
	_ ClanStore          = servicetest.ClanStore{}
	_ ActivityStore      = servicetest.ActivityStore{}
	_ EventProgressStore = servicetest.EventProgressStore{}
	_ RunStore           = servicetest.RunStore{}
)
