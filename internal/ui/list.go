package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/spotenv/internal/formatter"
	"github.com/desertthunder/spotenv/internal/models"
)

var (
	_ list.Item = packageItem{}
)

// packageItem wraps [formatter.PackageStatus] to implement [list.Item].
type packageItem struct {
	pkg formatter.PackageStatus
}

func (i packageItem) FilterValue() string { return i.pkg.Name }
func (i packageItem) Title() string {
	return models.Dependency{Name: i.pkg.Name, Version: i.pkg.Version}.Spec()
}
func (i packageItem) Description() string {
	desc := statusStyle(i.pkg.Status).Render(i.pkg.Status)
	if i.pkg.Error != "" {
		desc += " • " + i.pkg.Error
	}
	return desc
}

func packageItems(r *formatter.Report) []list.Item {
	items := make([]list.Item, len(r.Packages))
	for i, p := range r.Packages {
		items[i] = packageItem{pkg: p}
	}
	return items
}
