package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/frames"
)

// AddedPerson is one identity stored by BuildWatchlist or EnrollImages.
type AddedPerson struct {
	RecordID   string `json:"record_id"`
	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`
	Path       string `json:"path"`
}

// WatchlistReport summarises an enrollment run.
type WatchlistReport struct {
	Added   []AddedPerson `json:"added"`
	NoFaces []string      `json:"no_faces"` // images with zero detections
	Failed  []string      `json:"failed"`   // unreadable images or detection, embedding or store failures
}

// Count returns the number of identities added.
func (r WatchlistReport) Count() int { return len(r.Added) }

// ProgressFunc is called after each image with the images handled so far and the total.
type ProgressFunc func(done, total int)

// PersonName derives a display name from an image file name: the base name
// without extension, in Unicode NFC form.
func PersonName(path string) string {
	base := filepath.Base(path)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// BuildWatchlist stores one identity per image under dir, using the first
// face the engine reports. Person IDs are "<prefix>_<n>" where n counts
// successful adds from zero. Images without faces and per-image failures are
// reported and skipped. The matcher cache is invalidated after every add.
func (o *Orchestrator) BuildWatchlist(ctx context.Context, dir, prefix string, progress ProgressFunc) (WatchlistReport, error) {
	if prefix == "" {
		prefix = constants.DefaultPersonIDPrefix
	}
	isImage := o.opts.IsImage
	if isImage == nil {
		isImage = func(string) bool { return true }
	}

	set, err := frames.NewImageSet(dir, isImage, o.logger)
	if err != nil {
		return WatchlistReport{}, err
	}
	defer set.Close()

	var report WatchlistReport
	total := set.Len()
	done := 0
	tick := func() {
		done++
		if progress != nil {
			progress(done, total)
		}
	}

	for {
		skippedBefore := len(set.Skipped())
		f, err := set.Next(ctx)
		for _, p := range set.Skipped()[skippedBefore:] {
			report.Failed = append(report.Failed, p)
			tick()
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, err
		}

		o.enroll(ctx, f, prefix, len(report.Added), &report)
		tick()
	}
	return report, nil
}

// EnrollImages stores one identity per listed image, like BuildWatchlist
// does for a directory. Person IDs continue after the highest
// "<prefix>_<n>" already stored, so existing identities keep their IDs.
func (o *Orchestrator) EnrollImages(ctx context.Context, paths []string, prefix string, progress ProgressFunc) (WatchlistReport, error) {
	if prefix == "" {
		prefix = constants.DefaultPersonIDPrefix
	}
	first, err := o.nextSequence(ctx, prefix)
	if err != nil {
		return WatchlistReport{}, err
	}

	var report WatchlistReport
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		f, err := frames.LoadImage(path)
		if err != nil {
			o.logger.Warn("skipping unreadable image", "path", path, "error", err)
			report.Failed = append(report.Failed, path)
		} else {
			o.enroll(ctx, f, prefix, first+len(report.Added), &report)
		}
		if progress != nil {
			progress(i+1, len(paths))
		}
	}
	return report, nil
}

// nextSequence returns one past the highest n among stored "<prefix>_<n>" IDs.
func (o *Orchestrator) nextSequence(ctx context.Context, prefix string) (int, error) {
	recs, err := o.store.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading watchlist: %w", err)
	}
	next := 0
	for _, r := range recs {
		rest, ok := strings.CutPrefix(r.PersonID, prefix+"_")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}

// enroll adds f as person "<prefix>_<seq>" and files the outcome in report.
func (o *Orchestrator) enroll(ctx context.Context, f frames.Frame, prefix string, seq int, report *WatchlistReport) {
	added, err := o.addIdentity(ctx, f, prefix, seq)
	switch {
	case errors.Is(err, errNoFaces):
		o.logger.Info("no faces detected", "path", f.Path)
		report.NoFaces = append(report.NoFaces, f.Path)
	case err != nil:
		o.logger.Warn("failed to add identity", "path", f.Path, "error", err)
		report.Failed = append(report.Failed, f.Path)
	default:
		o.logger.Info("added identity", "person_id", added.PersonID, "person_name", added.PersonName, "path", f.Path)
		report.Added = append(report.Added, added)
	}
}

var errNoFaces = errors.New("no faces detected")

func (o *Orchestrator) addIdentity(ctx context.Context, f frames.Frame, prefix string, seq int) (AddedPerson, error) {
	dets, err := o.engine.Detect(ctx, f)
	if err != nil {
		return AddedPerson{}, fmt.Errorf("detecting faces: %w", err)
	}
	if len(dets) == 0 {
		return AddedPerson{}, errNoFaces
	}

	emb, err := o.engine.Embed(ctx, f, dets[0])
	if err != nil {
		return AddedPerson{}, err
	}

	p := AddedPerson{
		PersonID:   fmt.Sprintf("%s_%d", prefix, seq),
		PersonName: PersonName(f.Path),
		Path:       f.Path,
	}
	id, err := o.store.Add(ctx, p.PersonID, p.PersonName, emb, f.Path)
	if err != nil {
		return AddedPerson{}, err
	}
	o.matcher.InvalidateCache()
	p.RecordID = id
	return p, nil
}
