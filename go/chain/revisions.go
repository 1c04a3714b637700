// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Revision is an enumeration for EVM specification revisions (aka. Hard-Forks).
type Revision int

// The list of revisions supported by the simulator.
const (
	R07_Istanbul Revision = iota
	R09_Berlin
	R10_London
	R11_Paris
	R12_Shanghai
	R13_Cancun
	numRevisions int = iota
)

// NewestRevision is the default revision of simulated calls.
const NewestRevision = R13_Cancun

// GetAllKnownRevisions returns all supported revisions in ascending order.
func GetAllKnownRevisions() []Revision {
	res := make([]Revision, 0, numRevisions)
	for r := Revision(0); int(r) < numRevisions; r++ {
		res = append(res, r)
	}
	return res
}

func (r Revision) String() string {
	switch r {
	case R07_Istanbul:
		return "Istanbul"
	case R09_Berlin:
		return "Berlin"
	case R10_London:
		return "London"
	case R11_Paris:
		return "Paris"
	case R12_Shanghai:
		return "Shanghai"
	case R13_Cancun:
		return "Cancun"
	default:
		return fmt.Sprintf("Revision(%d)", r)
	}
}

// ParseRevision resolves a revision by its (case-insensitive) name.
func ParseRevision(name string) (Revision, error) {
	for _, r := range GetAllKnownRevisions() {
		if strings.EqualFold(r.String(), name) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown revision: %s", name)
}

func (r Revision) MarshalJSON() ([]byte, error) {
	if r < 0 || int(r) >= numRevisions {
		return nil, &json.UnsupportedValueError{Str: r.String()}
	}
	return json.Marshal(r.String())
}

func (r *Revision) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	revision, err := ParseRevision(s)
	if err != nil {
		return err
	}
	*r = revision
	return nil
}
