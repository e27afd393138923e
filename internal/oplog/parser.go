package oplog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Session status values derived from the trailer.
const (
	StatusFinished   = "finished"
	StatusFailed     = "failed"
	StatusAborted    = "aborted"
	StatusIncomplete = "incomplete"
)

// Record is one parsed unit line.
type Record struct {
	Line    int              `json:"line" yaml:"line"`
	Unit    types.SectorUnit `json:"unit" yaml:"unit"`
	Outcome types.Outcome    `json:"outcome" yaml:"outcome"`
	Aborted bool             `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

// Session is one imaging run reconstructed from the log.
type Session struct {
	Destination string         `json:"destination" yaml:"destination"`
	ID          string         `json:"id" yaml:"id"`
	Drive       int            `json:"drive" yaml:"drive"`
	Device      string         `json:"device" yaml:"device"`
	Geometry    types.Geometry `json:"geometry" yaml:"geometry"`
	Started     time.Time      `json:"started" yaml:"started"`
	Ended       time.Time      `json:"ended,omitempty" yaml:"ended,omitempty"`
	Status      string         `json:"status" yaml:"status"`
	Failure     string         `json:"failure,omitempty" yaml:"failure,omitempty"`
	Records     []Record       `json:"records" yaml:"records"`
}

// Parse reads every session in r. Session lines that cannot be parsed are
// reported with their line number; record lines outside any session are
// collected into an anonymous session.
func Parse(r io.Reader) ([]*Session, error) {
	var (
		sessions []*Session
		cur      *Session
		lineNo   int
	)
	current := func() *Session {
		if cur == nil {
			cur = &Session{Status: StatusIncomplete}
			sessions = append(sessions, cur)
		}
		return cur
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		switch {
		case strings.Contains(line, phraseStarted):
			s, err := parseHeader(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cur = s
			sessions = append(sessions, cur)
		case strings.HasPrefix(line, "Drive "):
			if err := parseDrive(current(), line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case strings.Contains(line, phraseFinished):
			s := current()
			idx := strings.LastIndex(line, phraseFinished)
			s.Status = StatusFinished
			s.Ended, _ = time.Parse(TimeLayout, strings.TrimSpace(line[idx+len(phraseFinished):]))
		case strings.Contains(line, phraseFailed):
			s := current()
			idx := strings.LastIndex(line, phraseFailed)
			rest := line[idx+len(phraseFailed):]
			stamp, reason, _ := strings.Cut(rest, ": ")
			s.Ended, _ = time.Parse(TimeLayout, stamp)
			s.Failure = reason
			if s.Status != StatusAborted {
				s.Status = StatusFailed
			}
		default:
			rec, err := ParseRecord(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			rec.Line = lineNo
			s := current()
			s.Records = append(s.Records, rec)
			if rec.Aborted {
				s.Status = StatusAborted
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return sessions, nil
}

// ParseRecord parses one record line such as "RETRY 3: 12,1,7".
func ParseRecord(line string) (Record, error) {
	tag, addr, ok := strings.Cut(line, ": ")
	if !ok {
		return Record{}, fmt.Errorf("unrecognized log line %q", line)
	}
	unit, err := parseUnit(addr)
	if err != nil {
		return Record{}, err
	}

	rec := Record{Unit: unit}
	switch {
	case tag == tagOK:
		rec.Outcome = types.Success()
	case tag == tagErr:
		rec.Outcome = types.HardFailure(0)
	case tag == tagAborted:
		rec.Aborted = true
	case strings.HasPrefix(tag, tagRetry+" "):
		n, err := strconv.Atoi(strings.TrimPrefix(tag, tagRetry+" "))
		if err != nil {
			return Record{}, fmt.Errorf("bad retry count in %q", line)
		}
		rec.Outcome = types.SuccessAfterRetry(n)
	default:
		return Record{}, fmt.Errorf("unknown record tag %q", tag)
	}
	return rec, nil
}

func parseHeader(line string) (*Session, error) {
	idx := strings.LastIndex(line, phraseStarted)
	s := &Session{Destination: line[:idx], Status: StatusIncomplete}
	rest := line[idx+len(phraseStarted):]
	stamp, id, _ := strings.Cut(rest, " session ")
	t, err := time.Parse(TimeLayout, strings.TrimSpace(stamp))
	if err != nil {
		return nil, fmt.Errorf("bad session timestamp: %w", err)
	}
	s.Started = t
	s.ID = strings.TrimSpace(id)
	return s, nil
}

func parseDrive(s *Session, line string) error {
	var chs string
	rest := strings.TrimPrefix(line, "Drive ")
	ord, after, ok := strings.Cut(rest, " CHS: ")
	if !ok {
		return fmt.Errorf("bad drive line %q", line)
	}
	n, err := strconv.Atoi(ord)
	if err != nil {
		return fmt.Errorf("bad drive ordinal in %q", line)
	}
	s.Drive = n
	chs, s.Device, _ = strings.Cut(after, " device ")

	parts := strings.Split(chs, ",")
	if len(parts) != 3 {
		return fmt.Errorf("bad CHS %q", chs)
	}
	var vals [3]uint32
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return fmt.Errorf("bad CHS %q", chs)
		}
		vals[i] = uint32(v)
	}
	s.Geometry = types.Geometry{Cylinders: vals[0], Heads: vals[1], SectorsPerTrack: vals[2]}
	return nil
}

func parseUnit(addr string) (types.SectorUnit, error) {
	parts := strings.Split(strings.TrimSpace(addr), ",")
	if len(parts) != 3 {
		return types.SectorUnit{}, fmt.Errorf("bad CHS address %q", addr)
	}
	var vals [3]uint32
	for i, p := range parts {
		if i == 2 && p == "*" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return types.SectorUnit{}, fmt.Errorf("bad CHS address %q", addr)
		}
		vals[i] = uint32(v)
	}
	return types.SectorUnit{Cylinder: vals[0], Head: vals[1], Sector: vals[2]}, nil
}
