package grading

import "strings"

func feedback(q Question, correct bool) string {
	expl := strings.TrimSpace(q.Explanation)
	if correct {
		if expl == "" {
			return "Correct!"
		}
		return "Correct! " + expl
	}
	if expl != "" {
		return "Incorrect. " + expl
	}
	return "Incorrect. " + defaultFeedback(q)
}

func defaultFeedback(q Question) string {
	switch q.Type {
	case TypeMultipleChoice:
		labels := make([]string, 0, len(q.Key.Indices))
		for _, i := range q.Key.Indices {
			if l, ok := OptionLabel(q.Options, i); ok {
				labels = append(labels, l)
			}
		}
		return "The correct answer(s): " + strings.Join(labels, ", ")
	case TypeTrueFalse:
		if q.Key.Value {
			return "The correct answer is: True"
		}
		return "The correct answer is: False"
	case TypeShortAnswer:
		return "Acceptable answers include: " + strings.Join(q.Key.Accepted, ", ")
	default:
		return "Please review the material and try again."
	}
}
