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

// Package iamondb loads the IAM On-Line Handwriting Database (IAM-OnDB) into
// the uniform handwriting sample schema.
//
// The corpus is distributed (registration required) as two trees:
//
//	lineStrokes-all/lineStrokes/<a01>/<a01-000>/<a01-000u-01>.xml
//	ascii-all/ascii/<a01>/<a01-000>/<a01-000u>.txt
//
// Each lineStrokes XML file holds the pen trajectory of one handwritten text
// line; its transcription is the matching numbered line in the "CSR:" section
// of the ascii file.
package iamondb

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/ml/data"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/PellelNitram/carbune2020-implementation/handwriting"
)

// Recordings with damaged stroke data (duplicated or truncated trajectories in
// the official distribution). They are excluded from loading.
var knownCorrupt = map[string]bool{
	"a08-551z-08": true,
	"a08-551z-09": true,
}

// Source loads IAM-OnDB line recordings. It implements handwriting.Source.
type Source struct {
	// Dir is the corpus root, the directory containing lineStrokes-all/ and
	// ascii-all/ (the unpacked official archives).
	Dir string

	// ShowProgress displays a progress bar while parsing; loading the full
	// corpus walks >10k XML files.
	ShowProgress bool

	logger zerolog.Logger
}

// New creates an IAM-OnDB source rooted at dir. A leading "~" in dir is
// expanded to the user's home directory.
func New(dir string, logger zerolog.Logger) *Source {
	return &Source{
		Dir:    data.ReplaceTildeInDir(dir),
		logger: logger.With().Str("source", "iamondb").Logger(),
	}
}

// Name implements handwriting.Source.
func (src *Source) Name() string { return "iamondb" }

// XML schema of a lineStrokes file.
type captureSession struct {
	StrokeSet struct {
		Strokes []struct {
			Points []struct {
				X    float64 `xml:"x,attr"`
				Y    float64 `xml:"y,attr"`
				Time float64 `xml:"time,attr"`
			} `xml:"Point"`
		} `xml:"Stroke"`
	} `xml:"StrokeSet"`
}

// Load implements handwriting.Source. It materializes at most limit samples
// (limit <= 0 loads the full corpus). Individually malformed recordings --
// unparseable XML, missing transcription lines -- are logged and skipped;
// only structural problems (missing corpus trees) fail the load.
func (src *Source) Load(limit int) (*handwriting.Dataset, error) {
	strokesRoot := filepath.Join(src.Dir, "lineStrokes-all", "lineStrokes")
	asciiRoot := filepath.Join(src.Dir, "ascii-all", "ascii")
	for _, root := range []string{strokesRoot, asciiRoot} {
		if _, err := os.Stat(root); err != nil {
			return nil, errors.Wrapf(err, "IAM-OnDB tree not found under %q", src.Dir)
		}
	}

	var strokeFiles []string
	err := filepath.WalkDir(strokesRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".xml") {
			strokeFiles = append(strokeFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk IAM-OnDB stroke files under %q", strokesRoot)
	}
	// WalkDir is already lexical, but make the contract explicit: sample order
	// must be reproducible across runs.
	sort.Strings(strokeFiles)

	var bar *progressbar.ProgressBar
	if src.ShowProgress {
		bar = progressbar.Default(int64(len(strokeFiles)), "IAM-OnDB")
	}

	ds := handwriting.New("iamondb", src.logger)
	transcriptions := newTranscriptionCache(asciiRoot)
	skipped := 0
	for _, path := range strokeFiles {
		if bar != nil {
			_ = bar.Add(1)
		}
		if limit > 0 && ds.Len() >= limit {
			break
		}
		name := strings.TrimSuffix(filepath.Base(path), ".xml")
		if knownCorrupt[name] {
			skipped++
			continue
		}
		label, err := transcriptions.lookup(name)
		if err != nil {
			src.logger.Warn().Err(err).Str("sample", name).Msg("no transcription, skipping record")
			skipped++
			continue
		}
		sample, err := parseStrokeFile(path, name, label)
		if err != nil {
			src.logger.Warn().Err(err).Str("sample", name).Msg("malformed record, skipping")
			skipped++
			continue
		}
		ds.Append(sample)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	src.logger.Info().
		Str("samples", humanize.Comma(int64(ds.Len()))).
		Int("skipped", skipped).
		Msg("IAM-OnDB loaded")
	return ds, nil
}

func parseStrokeFile(path, name, label string) (*handwriting.Sample, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	var session captureSession
	if err := xml.Unmarshal(encoded, &session); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}
	if len(session.StrokeSet.Strokes) == 0 {
		return nil, errors.Errorf("%q contains no strokes", path)
	}
	strokes := make([]handwriting.Stroke, 0, len(session.StrokeSet.Strokes))
	for _, rawStroke := range session.StrokeSet.Strokes {
		stroke := make(handwriting.Stroke, 0, len(rawStroke.Points))
		for _, p := range rawStroke.Points {
			// The whiteboard origin is top-left with y growing downward;
			// flip y so the text is upright.
			stroke = append(stroke, handwriting.Point{X: p.X, Y: -p.Y, T: p.Time})
		}
		if len(stroke) > 0 {
			strokes = append(strokes, stroke)
		}
	}
	return handwriting.FromStrokes(name, label, strokes), nil
}

// transcriptionCache parses each ascii file once and indexes its CSR lines by
// line-recording name ("a01-000u-01" -> first CSR line of a01-000u.txt).
type transcriptionCache struct {
	asciiRoot string
	lines     map[string]string
	parsed    map[string]bool
}

func newTranscriptionCache(asciiRoot string) *transcriptionCache {
	return &transcriptionCache{
		asciiRoot: asciiRoot,
		lines:     make(map[string]string),
		parsed:    make(map[string]bool),
	}
}

func (c *transcriptionCache) lookup(sampleName string) (string, error) {
	idx := strings.LastIndex(sampleName, "-")
	if idx < 0 {
		return "", errors.Errorf("stroke file name %q has no line number suffix", sampleName)
	}
	docName := sampleName[:idx]
	if !c.parsed[docName] {
		if err := c.parseDoc(docName); err != nil {
			return "", err
		}
	}
	label, found := c.lines[sampleName]
	if !found {
		return "", errors.Errorf("transcription of %q not found in the CSR section of %s.txt", sampleName, docName)
	}
	return label, nil
}

// parseDoc reads the "CSR:" section of one ascii transcription file. The n-th
// non-empty line after the "CSR:" marker is the transcription of line
// recording "<doc>-<nn>" with nn starting at 01.
func (c *transcriptionCache) parseDoc(docName string) error {
	c.parsed[docName] = true
	// "a01-000u" lives in ascii/a01/a01-000/a01-000u.txt: the middle level is
	// the form name, i.e. the document name without its writer-variant letters.
	group, _, found := strings.Cut(docName, "-")
	if !found {
		return errors.Errorf("unexpected document name %q", docName)
	}
	form := strings.TrimRightFunc(docName, func(r rune) bool { return r < '0' || r > '9' })
	path := filepath.Join(c.asciiRoot, group, form, docName+".txt")
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open transcription file %q", path)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	inCSR := false
	lineNr := 0
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if !inCSR {
			inCSR = strings.HasPrefix(line, "CSR:")
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		lineNr++
		c.lines[fmt.Sprintf("%s-%02d", docName, lineNr)] = line
	}
	return errors.Wrapf(scanner.Err(), "failed to read transcription file %q", path)
}

var _ handwriting.Source = &Source{}
