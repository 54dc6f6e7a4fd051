// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

package tail

import (
	"bytes"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/probeum/probewatch/telemetry"
)

// Warmup replays every line currently in path once, handing each parsed
// record to handle with storeHistory=true (the caller decides, at the
// model layer, whether a given record's age still falls inside the
// history window — records older than it still update the live model,
// per §4.3). The file is memory-mapped for this one-shot sequential
// scan, which is materially faster than a buffered read for the
// typically-large existing log a cold boot replays. A missing file is
// not an error: there is simply nothing to warm up from yet.
func Warmup(path string, handle Handler) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer m.Unmap()

	data := []byte(m)
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		var line []byte
		if idx < 0 {
			line = data
			data = nil
		} else {
			line = data[:idx]
			data = data[idx+1:]
		}
		if len(line) == 0 {
			continue
		}
		recs, err := telemetry.ParseLine(line)
		if err != nil {
			continue
		}
		for _, rec := range recs {
			handle(rec, true)
		}
	}
	return nil
}
