package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// StampLayout names export folders and files.
const StampLayout = "2006_01_02_15_04_05"

// Kinds of export files.
const (
	KindMembers   = "members"
	KindMessages  = "messages"
	KindReactions = "reactions"
)

// Stamp formats t for folder and file names.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

// Layout resolves export file paths for one run.
type Layout struct {
	// Dir is <data_folder>/<stamp>.
	Dir string

	// Stamp is the run's timestamp.
	Stamp string

	// Conversation names the files of a single-conversation export. Empty means
	// "all".
	Conversation string
}

// NewLayout creates the layout for a run started at t.
func NewLayout(dataFolder string, t time.Time, conversation string) Layout {
	stamp := Stamp(t)
	return Layout{
		Dir:          filepath.Join(dataFolder, stamp),
		Stamp:        stamp,
		Conversation: conversation,
	}
}

// Path returns the file path of kind, e.g. members_all_<stamp>.csv or
// general_members_<stamp>.csv.
func (l Layout) Path(kind string) string {
	name := fmt.Sprintf("%s_all_%s.csv", kind, l.Stamp)
	if l.Conversation != "" {
		name = fmt.Sprintf("%s_%s_%s.csv", sanitize(l.Conversation), kind, l.Stamp)
	}
	return filepath.Join(l.Dir, name)
}

// sanitize keeps a conversation name usable as a file name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
