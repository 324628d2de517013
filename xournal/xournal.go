/*
 *	Copyright 2024 Martin Lellep
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package xournal loads hand-annotated Xournal files (.xoj) page-wise: every
// page with pen strokes becomes one sample, labeled by the page's text
// element. This gives a quick way to test the pipeline on self-recorded real
// data without access to a full corpus.
//
// Xournal stores no timing information, so timestamps are synthesized at a
// fixed rate of one point per 50ms, increasing monotonically across strokes.
package xournal

import (
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

// pointInterval is the synthesized time between consecutive points, seconds.
const pointInterval = 0.05

// Source loads one .xoj file page-wise. It implements handwriting.Source.
type Source struct {
	// Path of the .xoj file (gzip-compressed Xournal XML).
	Path string

	logger zerolog.Logger
}

// New creates a Xournal source for the given .xoj file.
func New(path string, logger zerolog.Logger) *Source {
	return &Source{
		Path:   path,
		logger: logger.With().Str("source", "xournal").Logger(),
	}
}

// Name implements handwriting.Source.
func (src *Source) Name() string { return "xournal" }

type xojFile struct {
	Pages []xojPage `xml:"page"`
}

type xojPage struct {
	Layers []xojLayer `xml:"layer"`
}

type xojLayer struct {
	Strokes []xojStroke `xml:"stroke"`
	Texts   []xojText   `xml:"text"`
}

type xojStroke struct {
	Tool   string `xml:"tool,attr"`
	Coords string `xml:",chardata"`
}

type xojText struct {
	Value string `xml:",chardata"`
}

// Load implements handwriting.Source. Pages without pen strokes or without a
// text label are logged and skipped; an unreadable file fails the load, since
// a single .xoj gives no way to recover from a broken archive.
func (src *Source) Load(limit int) (*handwriting.Dataset, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Xournal file %q", src.Path)
	}
	defer func() { _ = f.Close() }()
	unzipped, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%q is not a gzip'ed Xournal file", src.Path)
	}
	defer func() { _ = unzipped.Close() }()

	var file xojFile
	if err := xml.NewDecoder(unzipped).Decode(&file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse Xournal XML in %q", src.Path)
	}

	ds := handwriting.New("xournal", src.logger)
	for pageNr, page := range file.Pages {
		if limit > 0 && ds.Len() >= limit {
			break
		}
		sample, err := src.parsePage(pageNr, page)
		if err != nil {
			src.logger.Warn().Err(err).Int("page", pageNr).Msg("skipping page")
			continue
		}
		ds.Append(sample)
	}
	src.logger.Info().Int("samples", ds.Len()).Msg("Xournal file loaded")
	return ds, nil
}

func (src *Source) parsePage(pageNr int, page xojPage) (*handwriting.Sample, error) {
	var strokes []handwriting.Stroke
	label := ""
	now := 0.0
	for _, layer := range page.Layers {
		for _, text := range layer.Texts {
			if label == "" {
				label = strings.TrimSpace(text.Value)
			}
		}
		for _, rawStroke := range layer.Strokes {
			if rawStroke.Tool != "pen" {
				continue
			}
			stroke, err := parseCoords(rawStroke.Coords, &now)
			if err != nil {
				return nil, err
			}
			if len(stroke) > 0 {
				strokes = append(strokes, stroke)
			}
		}
	}
	if len(strokes) == 0 {
		return nil, errors.Errorf("page %d has no pen strokes", pageNr)
	}
	if label == "" {
		return nil, errors.Errorf("page %d has no text label", pageNr)
	}
	name := slugify(label)
	if name == "" {
		name = fmt.Sprintf("page_%03d", pageNr)
	}
	return handwriting.FromStrokes(name, label, strokes), nil
}

// parseCoords parses the whitespace-separated "x1 y1 x2 y2 ..." coordinate
// list of one stroke, advancing the synthesized clock.
func parseCoords(coords string, now *float64) (handwriting.Stroke, error) {
	fields := strings.Fields(coords)
	if len(fields)%2 != 0 {
		return nil, errors.Errorf("stroke has an odd number of coordinates (%d)", len(fields))
	}
	stroke := make(handwriting.Stroke, 0, len(fields)/2)
	for ii := 0; ii < len(fields); ii += 2 {
		x, err := strconv.ParseFloat(fields[ii], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad x coordinate %q", fields[ii])
		}
		y, err := strconv.ParseFloat(fields[ii+1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad y coordinate %q", fields[ii+1])
		}
		// Xournal's origin is top-left with y growing downward; flip it.
		stroke = append(stroke, handwriting.Point{X: x, Y: -y, T: *now})
		*now += pointInterval
	}
	return stroke, nil
}

// slugify turns a label into a file-name-friendly sample name, e.g.
// "Hello World!" -> "hello_world".
func slugify(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

var _ handwriting.Source = &Source{}
