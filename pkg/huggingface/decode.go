package huggingface

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Label is one class score from a text-classification model.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Token is one tagged span from a token-classification model. Models served
// without aggregation set Entity ("B-ORG"); aggregated ones set EntityGroup.
type Token struct {
	Entity      string  `json:"entity"`
	EntityGroup string  `json:"entity_group"`
	Word        string  `json:"word"`
	Score       float64 `json:"score"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
}

// Tag returns the BIO tag or the aggregated group.
func (t Token) Tag() string {
	if t.Entity != "" {
		return t.Entity
	}
	return t.EntityGroup
}

type generated struct {
	SummaryText   string `json:"summary_text"`
	GeneratedText string `json:"generated_text"`
}

// DecodeLabels parses a classification response. The API returns either a
// flat list or a list with one list per input.
func DecodeLabels(raw json.RawMessage) ([]Label, error) {
	var nested [][]Label
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}

	var flat []Label
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, eris.Wrap(err, "huggingface: decode labels")
	}
	return flat, nil
}

// DecodeTokens parses a token-classification response.
func DecodeTokens(raw json.RawMessage) ([]Token, error) {
	var tokens []Token
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, eris.Wrap(err, "huggingface: decode tokens")
	}
	return tokens, nil
}

// DecodeText parses a summarization or text-generation response.
func DecodeText(raw json.RawMessage) (string, error) {
	var list []generated
	if err := json.Unmarshal(raw, &list); err != nil {
		var single generated
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return "", eris.Wrap(err, "huggingface: decode text")
		}
		list = []generated{single}
	}
	if len(list) == 0 {
		return "", nil
	}
	if list[0].SummaryText != "" {
		return list[0].SummaryText, nil
	}
	return list[0].GeneratedText, nil
}
