// Package config defines the index profiles and their defaults.
package config

import "sort"

// Defaults.
const (
	DefaultRetain  = 30
	DefaultProfile = "builds"
)

const (
	linuxSuffix     = "-linux-x86_64.tar.xz"
	buildsDownloads = "https://github.com/openslide/builds/releases/download/"
)

func compareURL(repo string) string {
	return "https://github.com/openslide/" + repo + "/compare/{prev}...{cur}"
}

// BuiltinProfile returns a copy of the named builtin profile.
func BuiltinProfile(name string) (Profile, bool) {
	switch name {
	case "builds":
		return buildsProfile(), true
	case "winbuild":
		return winbuildProfile(), true
	}
	return Profile{}, false
}

// BuiltinProfileNames lists the builtin profiles.
func BuiltinProfileNames() []string {
	names := []string{"builds", "winbuild"}
	sort.Strings(names)
	return names
}

func buildsProfile() Profile {
	return Profile{
		Name:         "builds",
		Title:        "OpenSlide development builds",
		Repo:         "openslide/builds",
		Tag:          "v{id}",
		IDKey:        "version",
		DateFrom:     DateFromMetadata,
		Retain:       DefaultRetain,
		JSONPath:     "index.json",
		HTMLPath:     "index.html",
		RequireFiles: true,
		Fields: []Field{
			{Key: "openslide", Label: "openslide", CompareURL: compareURL("openslide")},
			{Key: "openslide-java", Label: "openslide-java", CompareURL: compareURL("openslide-java")},
			{Key: "openslide-bin", Label: "openslide-bin", CompareURL: compareURL("openslide-bin")},
		},
		Builders: []Builder{
			{Key: "linux-builder", Label: "linux-builder", When: `"` + linuxSuffix + `" in files`},
			{Key: "windows-builder", Label: "winbuild-builder"},
		},
		Artifacts: []Artifact{
			{Label: "Source", Suffix: ".tar.gz", URL: buildsDownloads + "v{id}/openslide-bin-{id}{suffix}"},
			{Label: "Windows x64", Suffix: "-windows-x64.zip", URL: buildsDownloads + "v{id}/openslide-bin-{id}{suffix}"},
			{Label: "macOS", Suffix: "-macos-arm64-x86_64.tar.xz", URL: buildsDownloads + "v{id}/openslide-bin-{id}{suffix}"},
			{Label: "Linux", Suffix: linuxSuffix, URL: buildsDownloads + "v{id}/openslide-bin-{id}{suffix}"},
		},
		Containers: []Container{
			{Org: "openslide", Name: "linux-builder"},
			{Org: "openslide", Name: "winbuild-builder"},
		},
	}
}

func winbuildProfile() Profile {
	return Profile{
		Name:     "winbuild",
		Title:    "OpenSlide Windows development builds",
		Repo:     "openslide/builds",
		Tag:      "windows-{id}",
		IDKey:    "pkgver",
		DateFrom: DateFromPrefix,
		Retain:   DefaultRetain,
		JSONPath: "windows/index.json",
		HTMLPath: "windows/index.html",
		Fields: []Field{
			{Key: "openslide", Label: "openslide", CompareURL: compareURL("openslide")},
			{Key: "openslide-java", Label: "openslide-java", CompareURL: compareURL("openslide-java")},
			{Key: "openslide-winbuild", Label: "openslide-winbuild", CompareURL: compareURL("openslide-winbuild")},
		},
		Artifacts: []Artifact{
			{Label: "32-bit", URL: buildsDownloads + "windows-{id}/openslide-win32-{id}.zip"},
			{Label: "64-bit", URL: buildsDownloads + "windows-{id}/openslide-win64-{id}.zip"},
			{Label: "Corresponding sources", URL: buildsDownloads + "windows-{id}/openslide-winbuild-{id}.zip"},
		},
	}
}
