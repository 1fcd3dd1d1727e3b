package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Stage string

const (
	StageQueued            Stage = "queued"
	StageDownloading       Stage = "downloading"
	StageVerifying         Stage = "verifying"
	StageInstalling        Stage = "installing"
	StageSuccess           Stage = "success"
	StagePendingUserAction Stage = "pending-user-action"
	StageFailed            Stage = "failed"
)

// InFlight reports whether a worker is mid-attempt on the item.
func (s Stage) InFlight() bool {
	return s == StageDownloading || s == StageVerifying || s == StageInstalling
}

// Terminal is true for success and for failures that will not be retried.
// A failure that is retried goes straight back to queued.
func (s Stage) Terminal() bool { return s == StageSuccess || s == StageFailed }

type Classification string

const (
	NewInstall Classification = "new-install"
	Update     Classification = "update"
	Latest     Classification = "latest"
)

// Classify compares a release against the installed inventory.
func Classify(installed map[string]int64, pkg string, versionCode int64) Classification {
	cur, ok := installed[pkg]
	switch {
	case !ok:
		return NewInstall
	case versionCode > cur:
		return Update
	default:
		return Latest
	}
}

type FailurePolicy string

const (
	StopOnFailure     FailurePolicy = "stop-on-failure"
	ContinueOnFailure FailurePolicy = "continue-on-failure"
	RetryThenContinue FailurePolicy = "retry-then-continue"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case StopOnFailure, ContinueOnFailure, RetryThenContinue:
		return p, nil
	case "":
		return RetryThenContinue, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

type Policy struct {
	Failure    FailurePolicy `json:"failure"`
	MaxRetries int           `json:"maxRetries"`
}

// retries reports whether a failed attempt may be requeued under p.
func (p Policy) retries(attempts int) bool {
	return p.Failure != ContinueOnFailure && attempts <= p.MaxRetries
}

// Request asks for one release to be installed.
type Request struct {
	PackageName       string
	DisplayName       string
	VersionCode       int64
	URL               string
	SHA256            string
	Size              int64
	SignerFingerprint string
	Classification    Classification
	// CommandID links the item to a server command whose result must be reported.
	CommandID uint
}

type Item struct {
	ID                string         `json:"id"`
	PackageName       string         `json:"packageName"`
	DisplayName       string         `json:"displayName,omitempty"`
	VersionCode       int64          `json:"versionCode"`
	URL               string         `json:"url"`
	SHA256            string         `json:"sha256"`
	Size              int64          `json:"size"`
	SignerFingerprint string         `json:"signerFingerprint,omitempty"`
	Classification    Classification `json:"classification"`
	CommandIDs        []uint         `json:"commandIds,omitempty"`

	Stage          Stage  `json:"stage"`
	Attempts       int    `json:"attempts"`
	FailureMessage string `json:"failureMessage,omitempty"`
	FailureCode    string `json:"failureCode,omitempty"`
	BytesDone      int64  `json:"bytesDone,omitempty"`
	BytesTotal     int64  `json:"bytesTotal,omitempty"`
	ArtifactPath   string `json:"artifactPath,omitempty"`
	// Policy is the one in force when the current attempt started.
	Policy Policy `json:"policy"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (it Item) clone() Item {
	it.CommandIDs = slices.Clone(it.CommandIDs)
	return it
}

func (it *Item) attach(commandID uint) bool {
	if commandID == 0 || slices.Contains(it.CommandIDs, commandID) {
		return false
	}
	it.CommandIDs = append(it.CommandIDs, commandID)
	return true
}

// Snapshot is the persisted and observable queue state.
type Snapshot struct {
	Items     []Item    `json:"items"`
	ActiveID  string    `json:"activeId,omitempty"`
	Running   bool      `json:"running"`
	Halted    bool      `json:"halted"`
	Policy    Policy    `json:"policy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Active returns the item being processed, if any.
func (s Snapshot) Active() (Item, bool) {
	for _, it := range s.Items {
		if it.ID == s.ActiveID && s.ActiveID != "" {
			return it, true
		}
	}
	return Item{}, false
}

// Event is sent to subscribers after every transition. Item is zero for
// run-level changes such as a drained or halted run.
type Event struct {
	Item     Item
	ActiveID string
	Running  bool
	Halted   bool
	Message  string
}
