// Copyright Dasan Software Lab, 2026. All rights reserved.

package holdings

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// regionCodes maps region display names (short and official long forms)
// to holdings-service partition codes. One code per region; the list of
// codes queried for a run is always deduplicated.
var regionCodes = map[string]string{
	"서울": "B10", "서울특별시": "B10",
	"부산": "C10", "부산광역시": "C10",
	"대구": "D10", "대구광역시": "D10",
	"인천": "E10", "인천광역시": "E10",
	"광주": "F10", "광주광역시": "F10",
	"대전": "G10", "대전광역시": "G10",
	"울산": "H10", "울산광역시": "H10",
	"세종": "I10", "세종특별자치시": "I10",
	"경기": "J10", "경기도": "J10",
	"강원": "K10", "강원도": "K10", "강원특별자치도": "K10",
	"충북": "M10", "충청북도": "M10",
	"충남": "N10", "충청남도": "N10",
	"전북": "P10", "전라북도": "P10", "전북특별자치도": "P10",
	"전남": "Q10", "전라남도": "Q10",
	"경북": "R10", "경상북도": "R10",
	"경남": "S10", "경상남도": "S10",
	"제주": "T10", "제주특별자치도": "T10",
}

// allPartitions lists every known partition code in a stable order.
var allPartitions = []string{
	"B10", "C10", "D10", "E10", "F10", "G10", "H10", "I10",
	"J10", "K10", "M10", "N10", "P10", "Q10", "R10", "S10", "T10",
}

// Code translates a region display name to its partition code.
func Code(region string) (string, bool) {
	code, ok := regionCodes[strings.TrimSpace(region)]
	return code, ok
}

// AllPartitions returns a copy of the full partition list.
func AllPartitions() []string {
	out := make([]string, len(allPartitions))
	copy(out, allPartitions)
	return out
}

// PartitionsFor returns the partition list to query for a target region:
// the home partition first, then the remaining codes, deduplicated. An
// unknown or empty region yields the full list unchanged.
func PartitionsFor(region string) []string {
	home, ok := Code(region)
	if !ok {
		return AllPartitions()
	}
	out := make([]string, 0, len(allPartitions))
	out = append(out, home)
	for _, p := range allPartitions {
		if p != home {
			out = append(out, p)
		}
	}
	return out
}

// Regions returns a copy of the region name to partition code mapping.
func Regions() map[string]string {
	out := make(map[string]string, len(regionCodes))
	for name, code := range regionCodes {
		out[name] = code
	}
	return out
}

// Dedup removes duplicate codes preserving first-seen order.
func Dedup(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	var out []string
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// PartitionFile is the on-disk override for the region mapping and the
// query list, so deployments can narrow or reorder partitions without a
// rebuild. The override never touches the built-in table; lookups go
// through the value's own methods.
type PartitionFile struct {
	// Regions maps region display names to partition codes, extending or
	// shadowing the built-in mapping.
	Regions map[string]string `yaml:"regions,omitempty"`

	// Partitions is the ordered list of codes to query.
	Partitions []string `yaml:"partitions,omitempty"`
}

// LoadPartitionFile reads a YAML partition override. Codes in the query
// list are deduplicated.
func LoadPartitionFile(path string) (*PartitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading partition file: %w", err)
	}
	var pf PartitionFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing partition file %s: %w", path, err)
	}
	pf.Partitions = Dedup(pf.Partitions)
	return &pf, nil
}

// Code resolves a region name, consulting the override mapping before the
// built-in table.
func (pf *PartitionFile) Code(region string) (string, bool) {
	if code, ok := pf.Regions[strings.TrimSpace(region)]; ok {
		return code, true
	}
	return Code(region)
}

// PartitionsFor returns the override's query list ordered home-first for
// the target region. An empty query list falls back to the built-in
// partition list.
func (pf *PartitionFile) PartitionsFor(region string) []string {
	list := pf.Partitions
	if len(list) == 0 {
		list = allPartitions
	}
	home, ok := pf.Code(region)
	if !ok {
		return Dedup(list)
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, home)
	for _, p := range list {
		if p != home {
			out = append(out, p)
		}
	}
	return Dedup(out)
}
