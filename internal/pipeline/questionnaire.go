package pipeline

import (
	"fmt"

	"github.com/sells-group/persona-cli/internal/model"
)

// QuestionnaireItem is one self-assessment question and the persona
// attribute its answer informs.
type QuestionnaireItem struct {
	Key       string
	Label     string
	Attribute model.AttributeKey
}

// QuestionnaireItems lists the accepted answers, in display order. Scores
// run from 0 to 100.
var QuestionnaireItems = []QuestionnaireItem{
	{Key: "risk_tolerance", Label: "Risk tolerance", Attribute: model.AttrMindset},
	{Key: "team_orientation", Label: "Team orientation", Attribute: model.AttrPersonality},
	{Key: "innovation_focus", Label: "Innovation focus", Attribute: model.AttrExpertise},
}

func validateAnswers(answers map[string]int) error {
	for k, v := range answers {
		known := false
		for _, item := range QuestionnaireItems {
			if item.Key == k {
				known = true
				break
			}
		}
		if !known {
			return &model.ValidationError{Field: "questionnaire", Reason: fmt.Sprintf("unknown item %q", k)}
		}
		if v < 0 || v > 100 {
			return &model.ValidationError{Field: "questionnaire." + k, Reason: fmt.Sprintf("score %d outside 0..100", v)}
		}
	}
	return nil
}
