// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package notification

// Type is a known notification kind, identified by name.
type Type string

const (
	TypeDownload    Type = "Download"
	TypeOrganize    Type = "Organize"
	TypeSubscribe   Type = "Subscribe"
	TypeSiteMessage Type = "SiteMessage"
	TypeMediaServer Type = "MediaServer"
	TypeManual      Type = "Manual"
	TypePlugin      Type = "Plugin"
	TypeOther       Type = "Other"
)

var labels = map[Type]string{
	TypeDownload:    "Resource download",
	TypeOrganize:    "Library import",
	TypeSubscribe:   "Subscription",
	TypeSiteMessage: "Site message",
	TypeMediaServer: "Media server",
	TypeManual:      "Manual handling",
	TypePlugin:      "Plugin",
	TypeOther:       "Other",
}

// Types lists the known kinds in display order.
func Types() []Type {
	return []Type{
		TypeDownload, TypeOrganize, TypeSubscribe, TypeSiteMessage,
		TypeMediaServer, TypeManual, TypePlugin, TypeOther,
	}
}

// Label returns the display label of a known kind name.
func Label(name string) (string, bool) {
	l, ok := labels[Type(name)]
	return l, ok
}

func (t Type) Label() string {
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}
