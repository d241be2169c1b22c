package provider

import (
	"regexp"
	"strings"

	"github.com/autobib/autobib/record"
)

// OnInsertHook normalizes a freshly fetched record before it is stored,
// per spec §4.3 "on_insert hooks". Hooks are pure functions over record.Data
// so they can be composed and unit-tested independently of the network.
type OnInsertHook func(record.Data) record.Data

// CollapseWhitespace collapses runs of whitespace in every field value to a
// single space and trims the ends.
func CollapseWhitespace(d record.Data) record.Data {
	out := record.Data{EntryType: d.EntryType}
	for _, f := range d.Fields {
		out.Fields = append(out.Fields, record.Field{Key: f.Key, Value: collapseSpaces(f.Value)})
	}
	return out
}

var spaceRun = regexp.MustCompile(`\s+`)

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// journalSeriesPattern strips a trailing parenthesized series number from a
// journal field, e.g. "Ann. Math. (2)" -> "Ann. Math.". This is the
// implementation-defined regex referenced by spec §9's open question on
// strip_journal_series: a trailing, whitespace-padded "(<digits>)".
var journalSeriesPattern = regexp.MustCompile(`\s*\([0-9]+\)\s*$`)

// StripJournalSeries removes a trailing series marker like "(2)" from the
// "journal" field, if present.
func StripJournalSeries(d record.Data) record.Data {
	v, ok := d.Get("journal")
	if !ok {
		return d
	}
	stripped := journalSeriesPattern.ReplaceAllString(v, "")
	if stripped == v {
		return d
	}
	return d.With("journal", stripped)
}

// SynthesizeEprint returns a hook that fills in "eprint" with subID (and
// "archiveprefix" = "arXiv" when absent) if no eprint field is already
// present. The hook does not check which provider the record came from.
func SynthesizeEprint(subID string) OnInsertHook {
	return func(d record.Data) record.Data {
		if _, ok := d.Get("eprint"); ok {
			return d
		}
		out := d.With("eprint", subID)
		if _, ok := out.Get("archiveprefix"); !ok {
			out = out.With("archiveprefix", "arXiv")
		}
		return out
	}
}

// Chain composes hooks left to right.
func Chain(hooks ...OnInsertHook) OnInsertHook {
	return func(d record.Data) record.Data {
		for _, h := range hooks {
			if h != nil {
				d = h(d)
			}
		}
		return d
	}
}
