package notify

import (
	"crewtrack/internal/model"
)

// Recipient identifies one delivery target with its channel endpoints.
type Recipient struct {
	Username    string
	DisplayName string
	Email       string
	WebhookURL  string
}

// Message is one composed notification unit.
type Message struct {
	Category string
	Subject  string
	Body     string
}

// Message categories emitted by the collectors.
const (
	CategoryOverdue = "overdue"
	CategorySummary = "summary"
	CategoryBadge   = "badge"
)

// Job is the batch of messages queued for one recipient in one run.
type Job struct {
	Recipient Recipient
	Prefs     model.Preferences
	Messages  []Message
}

// MergeJobs folds several per-collector job lists into at most one job per
// recipient, concatenating messages. First appearance fixes the order.
func MergeJobs(lists ...[]Job) []Job {
	var merged []Job
	index := make(map[string]int)
	for _, jobs := range lists {
		for _, job := range jobs {
			uname := model.NormalizeUsername(job.Recipient.Username)
			if i, ok := index[uname]; ok {
				merged[i].Messages = append(merged[i].Messages, job.Messages...)
				continue
			}
			index[uname] = len(merged)
			merged = append(merged, job)
		}
	}
	return merged
}

func newRecipient(user model.User) Recipient {
	return Recipient{
		Username:    model.NormalizeUsername(user.Username),
		DisplayName: user.EffectiveDisplayName(),
		Email:       user.Email,
		WebhookURL:  user.WebhookURL,
	}
}
