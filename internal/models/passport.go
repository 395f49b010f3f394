package models

import (
	"time"

	"gorm.io/datatypes"
)

// LLMPassport is the model-generated annotation of a channel.
type LLMPassport struct {
	BloggerID int64 `gorm:"column:blogger_id;primaryKey;autoIncrement:false" json:"blogger_id"`

	ContentShortDescription *string        `gorm:"column:content_short_description" json:"content_short_description"`
	ContentChannelFormat    *string        `gorm:"column:content_channel_format" json:"content_channel_format"`
	ContentTags             datatypes.JSON `gorm:"column:content_tags" json:"content_tags"`
	ContentLanguage         *string        `gorm:"column:content_language" json:"content_language"`
	ContentContacts         datatypes.JSON `gorm:"column:content_contacts" json:"content_contacts"`
	ContentCategory         *string        `gorm:"column:content_category" json:"content_category"`
	Ads                     *string        `gorm:"column:ads" json:"ads"`

	AudienceGeo         *string `gorm:"column:audience_geo" json:"audience_geo"`
	AudienceGenderAge   *string `gorm:"column:audience_gender_age" json:"audience_gender_age"`
	CommunityPsychotype *string `gorm:"column:community_psychotype" json:"community_psychotype"`
	CommunityRisks      *string `gorm:"column:community_content_risks" json:"community_content_risks"`

	BrandSafety           *string `gorm:"column:advertising_brand_safety" json:"advertising_brand_safety"`
	ToneOfVoice           *string `gorm:"column:advertising_tone_of_voice" json:"advertising_tone_of_voice"`
	MonetizationModel     *string `gorm:"column:advertising_monetization_model" json:"advertising_monetization_model"`
	AdReport              *string `gorm:"column:advertising_ad_report" json:"advertising_ad_report"`
	CommunicationStrategy *string `gorm:"column:advertising_communication_strategy_tips" json:"advertising_communication_strategy_tips"`
	StatsComment          *string `gorm:"column:advertising_stats_comment" json:"advertising_stats_comment"`

	RawJSON       datatypes.JSON `gorm:"column:raw_json" json:"-"`
	Model         string         `gorm:"column:model" json:"model"`
	SchemaVersion int            `gorm:"column:schema_version" json:"schema_version"`
	CreatedAt     time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (LLMPassport) TableName() string { return "llm_passports" }
