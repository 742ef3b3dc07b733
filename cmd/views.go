package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deploymenttheory/go-xattrfs/internal/search"
	xattrs "github.com/deploymenttheory/go-xattrfs/internal/services"
	"github.com/deploymenttheory/go-xattrfs/internal/types"
	"github.com/deploymenttheory/go-xattrfs/pkg/app/output"
)

type attrRow struct {
	Name  string   `json:"name" yaml:"name"`
	Size  int      `json:"size" yaml:"size"`
	Parts int      `json:"parts" yaml:"parts"`
	Hash  uint32   `json:"hash" yaml:"hash"`
	ID    uint64   `json:"id" yaml:"id"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type attrRows []attrRow

func newAttrRows(infos []xattrs.AttrInfo) attrRows {
	rows := make(attrRows, len(infos))
	for i, info := range infos {
		rows[i] = attrRow{
			Name:  info.Name,
			Size:  info.ValueLen,
			Parts: info.Parts,
			Hash:  info.Key.NameHash(),
			ID:    info.Key.ID(),
			Tags:  tagNames(info.Tags),
		}
	}
	return rows
}

func (r attrRows) Header() []string {
	return []string{"NAME", "SIZE", "PARTS", "HASH", "ID", "TAGS"}
}

func (r attrRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, a := range r {
		tags := strings.Join(a.Tags, ",")
		if tags == "" {
			tags = "-"
		}
		out[i] = []string{
			a.Name,
			output.FormatBytes(int64(a.Size)),
			strconv.Itoa(a.Parts),
			fmt.Sprintf("%08x", a.Hash),
			strconv.FormatUint(a.ID, 10),
			tags,
		}
	}
	return out
}

func tagNames(t types.TagSet) []string {
	var names []string
	for _, tag := range []struct {
		set  bool
		name string
	}{
		{t.Hide, "hide"}, {t.Search, "srch"}, {t.Total, "totl"}, {t.Worm, "worm"},
	} {
		if tag.set {
			names = append(names, tag.name)
		}
	}
	return names
}

type totalRow struct {
	Name  string `json:"name" yaml:"name"`
	Total int64  `json:"total" yaml:"total"`
	Count int64  `json:"count" yaml:"count"`
}

type totalRows []totalRow

func newTotalRows(entries []xattrs.TotalEntry) totalRows {
	rows := make(totalRows, len(entries))
	for i, e := range entries {
		rows[i] = totalRow{
			Name:  fmt.Sprintf("%d.%d.%d", e.Name[0], e.Name[1], e.Name[2]),
			Total: e.Total,
			Count: e.Count,
		}
	}
	return rows
}

func (r totalRows) Header() []string { return []string{"NAME", "TOTAL", "COUNT"} }

func (r totalRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, t := range r {
		out[i] = []string{t.Name, strconv.FormatInt(t.Total, 10), strconv.FormatInt(t.Count, 10)}
	}
	return out
}

type searchRows []search.Entry

func (r searchRows) Header() []string { return []string{"INO", "ID"} }

func (r searchRows) Rows() [][]string {
	out := make([][]string, len(r))
	for i, e := range r {
		out[i] = []string{strconv.FormatUint(e.Ino, 10), strconv.FormatUint(e.ID, 10)}
	}
	return out
}
