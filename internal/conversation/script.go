package conversation

// questionKind selects the parser applied to an answer.
type questionKind int

const (
	kindFreeText questionKind = iota
	kindDimensions
	kindComplexity
	kindYesNo
	kindBudget
	kindLocation
)

// Question is one step of the qualifying interview. CopyKey addresses the
// rendered prompt; Key is the LeadAnswer question_key and the per-field
// parse-failure counter name.
type Question struct {
	Key  string
	Kind questionKind
}

// CopyKey returns the message key for this question's prompt.
func (q Question) CopyKey() string {
	return "question." + q.Key
}

// script is the qualifying interview in asking order. current_step indexes
// into it.
var script = []Question{
	{Key: "idea", Kind: kindFreeText},
	{Key: "placement", Kind: kindFreeText},
	{Key: "dimensions", Kind: kindDimensions},
	{Key: "style", Kind: kindFreeText},
	{Key: "color", Kind: kindFreeText},
	{Key: "complexity", Kind: kindComplexity},
	{Key: "coverup", Kind: kindYesNo},
	{Key: "reference_images", Kind: kindFreeText},
	{Key: "instagram_handle", Kind: kindFreeText},
	{Key: "budget", Kind: kindBudget},
	{Key: "location", Kind: kindLocation},
	{Key: "timing", Kind: kindFreeText},
	{Key: "age_confirm", Kind: kindYesNo},
}

// questionAt returns the script entry for a step, or false when the step is
// past the end of the interview.
func questionAt(step int) (Question, bool) {
	if step < 0 || step >= len(script) {
		return Question{}, false
	}
	return script[step], true
}

// stepCount is the number of interview questions.
func stepCount() int {
	return len(script)
}

// QuestionCopyKeyAt exposes the prompt key for a step to callers outside the
// orchestrator, such as the reminder sweeper re-asking the current question.
func QuestionCopyKeyAt(step int) (string, bool) {
	q, ok := questionAt(step)
	if !ok {
		return "", false
	}
	return q.CopyKey(), true
}
