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

package handwriting

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sbinet/npyio"
)

// Persistent store layout: a zip archive with one directory ("group") per
// sample. Within a group, each numeric time series is one .npy typed array and
// each string feature is one UTF-8 .txt entry. Keys and values round-trip
// exactly; text features are decoded back to strings on read.
const (
	groupFormat  = "sample_%06d"
	nameEntry    = "sample_name.txt"
	labelEntry   = "label.txt"
	seriesSuffix = ".npy"
)

// Save serializes the dataset to the given path. A dataset with zero samples
// produces a valid archive with zero groups.
func (ds *Dataset) Save(filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create dataset store %q", filePath)
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	w := zip.NewWriter(f)
	for ii, sample := range ds.samples {
		group := fmt.Sprintf(groupFormat, ii)
		if err := writeText(w, path.Join(group, nameEntry), sample.Name); err != nil {
			return err
		}
		if err := writeText(w, path.Join(group, labelEntry), sample.Label); err != nil {
			return err
		}
		// Deterministic entry order within the group.
		features := make([]string, 0, len(sample.Series))
		for feature := range sample.Series {
			features = append(features, feature)
		}
		sort.Strings(features)
		for _, feature := range features {
			entry, err := w.Create(path.Join(group, feature+seriesSuffix))
			if err != nil {
				return errors.Wrapf(err, "failed to create store entry for %q/%q", group, feature)
			}
			if err := npyio.Write(entry, sample.Series[feature]); err != nil {
				return errors.Wrapf(err, "failed to write series %q of sample %q", feature, sample.Name)
			}
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "failed to finish dataset store %q", filePath)
	}
	err = f.Close()
	closed = true
	return errors.Wrapf(err, "failed to close dataset store %q", filePath)
}

// Load rehydrates a dataset previously written by Save.
func Load(filePath string, logger zerolog.Logger) (*Dataset, error) {
	r, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset store %q", filePath)
	}
	defer func() { _ = r.Close() }()

	// Group the archive entries per sample.
	groups := make(map[string][]*zip.File)
	for _, file := range r.File {
		group, _, found := strings.Cut(file.Name, "/")
		if !found {
			return nil, errors.Errorf("dataset store %q: entry %q is not inside a sample group", filePath, file.Name)
		}
		groups[group] = append(groups[group], file)
	}
	groupNames := make([]string, 0, len(groups))
	for group := range groups {
		groupNames = append(groupNames, group)
	}
	// Group names are fixed-width numbered, so the lexicographic order is the
	// write order.
	sort.Strings(groupNames)

	ds := New(strings.TrimSuffix(path.Base(filePath), path.Ext(filePath)), logger)
	for _, group := range groupNames {
		sample := NewSample("", "")
		for _, file := range groups[group] {
			key := path.Base(file.Name)
			switch {
			case key == nameEntry:
				sample.Name, err = readText(file)
			case key == labelEntry:
				sample.Label, err = readText(file)
			case strings.HasSuffix(key, seriesSuffix):
				feature := strings.TrimSuffix(key, seriesSuffix)
				sample.Series[feature], err = readSeries(file)
			default:
				err = errors.Errorf("unexpected entry %q", file.Name)
			}
			if err != nil {
				return nil, errors.WithMessagef(err, "dataset store %q, group %q", filePath, group)
			}
		}
		if err := sample.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "dataset store %q, group %q", filePath, group)
		}
		ds.Append(sample)
	}
	ds.logger.Debug().Int("samples", ds.Len()).Msg("dataset loaded from store")
	return ds, nil
}

func writeText(w *zip.Writer, name, value string) error {
	entry, err := w.Create(name)
	if err != nil {
		return errors.Wrapf(err, "failed to create store entry %q", name)
	}
	_, err = io.WriteString(entry, value)
	return errors.Wrapf(err, "failed to write store entry %q", name)
}

func readText(file *zip.File) (string, error) {
	r, err := file.Open()
	if err != nil {
		return "", errors.Wrapf(err, "failed to open entry %q", file.Name)
	}
	defer func() { _ = r.Close() }()
	encoded, err := io.ReadAll(r)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read entry %q", file.Name)
	}
	return string(encoded), nil
}

func readSeries(file *zip.File) ([]float64, error) {
	r, err := file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open entry %q", file.Name)
	}
	defer func() { _ = r.Close() }()
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(err, "entry %q is not a valid npy array", file.Name)
	}
	var values []float64
	if err := npy.Read(&values); err != nil {
		return nil, errors.Wrapf(err, "failed to read npy array from entry %q", file.Name)
	}
	return values, nil
}
