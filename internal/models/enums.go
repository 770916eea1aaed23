package models

type AdminLevel string

const (
	LevelProvince AdminLevel = "province"
	LevelDistrict AdminLevel = "district"
	LevelCommune  AdminLevel = "commune"
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

type GrowthStage string

const (
	StageSeedling  GrowthStage = "seedling"
	StageTillering GrowthStage = "tillering"
	StageBooting   GrowthStage = "booting"
	StageHeading   GrowthStage = "heading"
	StageRipening  GrowthStage = "ripening"
	StageHarvested GrowthStage = "harvested"
)

type CropCondition string

const (
	ConditionGood    CropCondition = "good"
	ConditionFair    CropCondition = "fair"
	ConditionPoor    CropCondition = "poor"
	ConditionDamaged CropCondition = "damaged"
)

type WaterLevel string

const (
	WaterDry      WaterLevel = "dry"
	WaterLow      WaterLevel = "low"
	WaterAdequate WaterLevel = "adequate"
	WaterFlooded  WaterLevel = "flooded"
)
