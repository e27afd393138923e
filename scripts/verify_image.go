package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-rawimage/internal/oplog"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// verifyResult counts the outcome of comparing logged units with the source
type verifyResult struct {
	Checked    int
	Skipped    int
	Mismatches []string
}

// latestSession parses the log and returns its last session
func latestSession(logPath string) (*oplog.Session, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	sessions, err := oplog.Parse(f)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no sessions in %s", logPath)
	}
	return sessions[len(sessions)-1], nil
}

// verify re-reads every recovered unit from the source and compares it with
// the image at the offset the geometry assigns to it
func verify(source, image io.ReaderAt, s *oplog.Session) (*verifyResult, error) {
	g := s.Geometry
	if !g.Valid() {
		return nil, fmt.Errorf("session %s has no usable geometry", s.ID)
	}

	res := &verifyResult{}
	for _, rec := range s.Records {
		if rec.Aborted {
			continue
		}
		if !rec.Outcome.OK() {
			res.Skipped++
			continue
		}

		off, size := g.TrackOffset(rec.Unit.Track()), g.TrackBytes()
		if rec.Unit.Sector != 0 {
			off, size = g.SectorOffset(rec.Unit), types.SectorSize
		}

		want := make([]byte, size)
		got := make([]byte, size)
		if _, err := source.ReadAt(want, off); err != nil {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: source unreadable: %v", rec.Unit, err))
			continue
		}
		if _, err := image.ReadAt(got, off); err != nil {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: image short at offset %d: %v", rec.Unit, off, err))
			continue
		}
		res.Checked++
		if !bytes.Equal(want, got) {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s: contents differ at offset %d", rec.Unit, off))
		}
	}
	return res, nil
}

func main() {
	fmt.Println("=== Raw Image Verification ===")
	fmt.Println()

	if len(os.Args) < 3 {
		fmt.Printf("Usage: go run scripts/verify_image.go <source-device> <image> [logfile]\n")
		fmt.Printf("Default log: rawhdd.log\n")
		os.Exit(1)
	}
	sourcePath, imagePath := os.Args[1], os.Args[2]
	logPath := "rawhdd.log"
	if len(os.Args) > 3 {
		logPath = os.Args[3]
	}

	session, err := latestSession(logPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Session: %s (%s)\n", session.ID, session.Status)
	fmt.Printf("Geometry: %s\n", session.Geometry)

	source, err := os.Open(sourcePath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer source.Close()

	image, err := os.Open(imagePath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer image.Close()

	res, err := verify(source, image, session)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Units checked: %d\n", res.Checked)
	fmt.Printf("  Unreadable units skipped: %d\n", res.Skipped)
	if len(res.Mismatches) > 0 {
		fmt.Printf("✗ Mismatches: %d\n", len(res.Mismatches))
		for _, m := range res.Mismatches {
			fmt.Printf("  %s\n", m)
		}
		os.Exit(1)
	}
	fmt.Println("✓ Image matches source for every recovered unit")
}
