package passport

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	"github.com/blockedby/chanscope/internal/models"
)

// SchemaVersion is stamped on every stored passport.
const SchemaVersion = 1

// Response is the model output.
type Response struct {
	BloggerID            string               `json:"blogger_id" validate:"required"`
	Ads                  []int64              `json:"ads,omitempty"`
	ContentSummary       ContentSummary       `json:"content_summary" validate:"required"`
	AudienceProfile      AudienceProfile      `json:"audience_profile" validate:"required"`
	AdvertisingPotential AdvertisingPotential `json:"advertising_potential" validate:"required"`
}

type ContentSummary struct {
	ShortDescription string   `json:"short_description" validate:"required"`
	ChannelFormat    string   `json:"channel_format" validate:"required,oneof=blog newsfeed aggregator catalog review visual_gallery"`
	Tags             []string `json:"tags"`
	Language         string   `json:"language" validate:"required"`
	Contacts         *string  `json:"contacts"`
	Category         []string `json:"category"`
	Ads              []int64  `json:"ads,omitempty"`
}

type AudienceProfile struct {
	Geo                   string          `json:"geo" validate:"required"`
	GenderAgeDistribution json.RawMessage `json:"gender_age_distribution"`
	Community             *Community      `json:"community,omitempty"`
}

type Community struct {
	AudiencePsychotype string   `json:"audience_psychotype"`
	ContentRisks       []string `json:"content_risks"`
}

type AdvertisingPotential struct {
	BrandSafetyRisk           string          `json:"brand_safety_risk" validate:"required,oneof=green yellow red"`
	ToneOfVoice               []string        `json:"tone_of_voice"`
	MonetizationModel         []string        `json:"monetization_model"`
	AdReport                  json.RawMessage `json:"ad_report"`
	CommunicationStrategyTips *string         `json:"communication_strategy_tips"`
	StatsComment              *string         `json:"stats_comment"`
}

// OutputSchema constrains the completion through the response format.
var OutputSchema = json.RawMessage(`{
  "type": "object",
  "required": ["blogger_id", "content_summary", "audience_profile", "advertising_potential"],
  "properties": {
    "blogger_id": {"type": "string"},
    "ads": {"type": "array", "items": {"type": "integer"}},
    "content_summary": {
      "type": "object",
      "required": ["short_description", "channel_format", "tags", "language", "contacts", "category"],
      "properties": {
        "short_description": {"type": "string"},
        "channel_format": {"type": "string", "enum": ["blog", "newsfeed", "aggregator", "catalog", "review", "visual_gallery"]},
        "tags": {"type": "array", "items": {"type": "string"}},
        "language": {"type": "string"},
        "contacts": {"type": ["string", "null"]},
        "category": {"type": "array", "items": {"type": "string"}},
        "ads": {"type": "array", "items": {"type": "integer"}}
      }
    },
    "audience_profile": {
      "type": "object",
      "required": ["geo", "gender_age_distribution"],
      "properties": {
        "geo": {"type": "string"},
        "gender_age_distribution": {"type": "object"},
        "community": {
          "type": "object",
          "properties": {
            "audience_psychotype": {"type": "string"},
            "content_risks": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "advertising_potential": {
      "type": "object",
      "required": ["brand_safety_risk", "tone_of_voice", "monetization_model", "ad_report", "communication_strategy_tips", "stats_comment"],
      "properties": {
        "brand_safety_risk": {"type": "string", "enum": ["green", "yellow", "red"]},
        "tone_of_voice": {"type": "array", "items": {"type": "string"}},
        "monetization_model": {"type": "array", "items": {"type": "string"}},
        "ad_report": {"type": ["object", "string", "null"]},
        "communication_strategy_tips": {"type": ["string", "null"]},
        "stats_comment": {"type": ["string", "null"]}
      }
    }
  }
}`)

var validate = validator.New()

// ParseResponse decodes and validates raw model output. Markdown code fences
// around the JSON are tolerated.
func ParseResponse(raw string) (*Response, error) {
	cleaned := cleanJSON(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("invalid json received from llm")
	}
	var resp Response
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if err := validate.Struct(resp); err != nil {
		return nil, fmt.Errorf("validate llm response: %w", err)
	}
	return &resp, nil
}

// cleanJSON removes markdown code blocks if present
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ToModel flattens r into the passport row of chatID.
func (r *Response) ToModel(chatID int64, raw, model string) models.LLMPassport {
	cs := r.ContentSummary
	ap := r.AudienceProfile
	adv := r.AdvertisingPotential

	ads := r.Ads
	if ads == nil {
		ads = cs.Ads
	}

	p := models.LLMPassport{
		BloggerID:               chatID,
		ContentShortDescription: nonEmpty(cs.ShortDescription),
		ContentChannelFormat:    nonEmpty(cs.ChannelFormat),
		ContentTags:             jsonColumn(cs.Tags),
		ContentLanguage:         nonEmpty(cs.Language),
		ContentContacts:         jsonColumn(cs.Contacts),
		ContentCategory:         firstOf(cs.Category),
		Ads:                     jsonText(ads),
		AudienceGeo:             nonEmpty(ap.Geo),
		AudienceGenderAge:       rawText(ap.GenderAgeDistribution),
		BrandSafety:             nonEmpty(adv.BrandSafetyRisk),
		ToneOfVoice:             jsonText(adv.ToneOfVoice),
		MonetizationModel:       jsonText(adv.MonetizationModel),
		AdReport:                rawText(adv.AdReport),
		CommunicationStrategy:   adv.CommunicationStrategyTips,
		StatsComment:            adv.StatsComment,
		RawJSON:                 datatypes.JSON(cleanJSON(raw)),
		Model:                   model,
		SchemaVersion:           SchemaVersion,
	}
	if ap.Community != nil {
		p.CommunityPsychotype = nonEmpty(ap.Community.AudiencePsychotype)
		p.CommunityRisks = jsonText(ap.Community.ContentRisks)
	}
	return p
}

func nonEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func firstOf(list []string) *string {
	for _, s := range list {
		if v := nonEmpty(s); v != nil {
			return v
		}
	}
	return nil
}

// jsonText encodes v, nil for nil values.
func jsonText[T any](v []T) *string {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func jsonColumn(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func rawText(raw json.RawMessage) *string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	return &s
}
