package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const generalH = `#ifndef CONFIG_GENERAL_H
#define CONFIG_GENERAL_H

#define PREAMBLE_SETTING 1

/** @file
 *
 * General configuration
 *
 */

FILE_LICENCE ( GPL2_OR_LATER );

/*
 * Banner timeout configuration
 *
 * This controls the timeout for the "Press Ctrl-B" banner
 * shown at boot.
 */
#define BANNER_TIMEOUT	20
#define ROM_BANNER_TIMEOUT ( 2 * BANNER_TIMEOUT )

/*
 * Network protocols
 *
 */

#define	NET_PROTO_IPV4	/* IPv4 protocol */
#define NET_PROTO_IPV6 /* Enable IPv6 */
#undef	NET_PROTO_FCOE	/* Fibre Channel over Ethernet protocol */
//#define NET_PROTO_STP	/* Spanning Tree protocol */
//#undef NET_PROTO_LACP /* Link Aggregation control protocol */
#define BROKEN_VALUE bad/* no space before comment */
#define UNTERMINATED /* never closed
this line matches nothing

/** Image types */
#define IMAGE_PXE		/* PXE image support */
#define DOWNLOAD_PROTO_TFTP 0x10 /* TFTP */ /* second */

#endif /* CONFIG_GENERAL_H */
`

func parseGeneral(t *testing.T) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(generalH))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestParseGroups(t *testing.T) {
	doc := parseGeneral(t)
	groups := doc.Groups()

	wantHeaders := [][]string{
		{"@file", "General configuration"},
		{"Banner timeout configuration", "This controls the timeout for the \"Press Ctrl-B\" banner shown at boot."},
		{"Network protocols"},
		{"Image types"},
	}
	if len(groups) != len(wantHeaders) {
		for i, g := range groups {
			t.Logf("group %d: %q (%d settings)", i, g.Header, len(g.Settings))
		}
		t.Fatalf("groups = %d, want %d", len(groups), len(wantHeaders))
	}
	for i, want := range wantHeaders {
		got := groups[i].Header
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("group %d header = %q, want %q", i, got, want)
		}
	}

	counts := []int{0, 2, 5, 2}
	for i, want := range counts {
		if got := len(groups[i].Settings); got != want {
			t.Fatalf("group %d settings = %d, want %d", i, got, want)
		}
	}
}

func TestParsePreambleDropped(t *testing.T) {
	doc := parseGeneral(t)
	if s := doc.Lookup("PREAMBLE_SETTING"); s != nil {
		t.Fatalf("preamble setting should be dropped, got %+v", s)
	}
	if s := doc.Lookup("CONFIG_GENERAL_H"); s != nil {
		t.Fatalf("include guard should be dropped, got %+v", s)
	}
}

func TestParseSettingForms(t *testing.T) {
	doc := parseGeneral(t)

	tests := []struct {
		name string
		want Setting
	}{
		{"BANNER_TIMEOUT", Setting{Keyword: KeywordDefine, Name: "BANNER_TIMEOUT", Value: "20", Active: true}},
		{"ROM_BANNER_TIMEOUT", Setting{Keyword: KeywordDefine, Name: "ROM_BANNER_TIMEOUT", Value: "( 2 * BANNER_TIMEOUT )", Active: true}},
		{"NET_PROTO_IPV4", Setting{Keyword: KeywordDefine, Name: "NET_PROTO_IPV4", Comment: "IPv4 protocol", Active: true}},
		{"NET_PROTO_IPV6", Setting{Keyword: KeywordDefine, Name: "NET_PROTO_IPV6", Comment: "Enable IPv6", Active: true}},
		{"NET_PROTO_FCOE", Setting{Keyword: KeywordUndef, Name: "NET_PROTO_FCOE", Comment: "Fibre Channel over Ethernet protocol"}},
		{"NET_PROTO_STP", Setting{Keyword: KeywordCommentedDefine, Name: "NET_PROTO_STP", Comment: "Spanning Tree protocol"}},
		{"NET_PROTO_LACP", Setting{Keyword: KeywordCommentedUndef, Name: "NET_PROTO_LACP", Comment: "Link Aggregation control protocol", Active: true}},
		{"IMAGE_PXE", Setting{Keyword: KeywordDefine, Name: "IMAGE_PXE", Comment: "PXE image support", Active: true}},
		{"DOWNLOAD_PROTO_TFTP", Setting{Keyword: KeywordDefine, Name: "DOWNLOAD_PROTO_TFTP", Value: "0x10", Comment: "TFTP */ /* second", Active: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := doc.Lookup(tc.name)
			if s == nil {
				t.Fatalf("Lookup(%q) = nil", tc.name)
			}
			if *s != tc.want {
				t.Fatalf("setting = %+v, want %+v", *s, tc.want)
			}
		})
	}
}

func TestParseRejectsMalformedDirectives(t *testing.T) {
	doc := parseGeneral(t)
	for _, name := range []string{"BROKEN_VALUE", "UNTERMINATED"} {
		if s := doc.Lookup(name); s != nil {
			t.Fatalf("Lookup(%q) = %+v, want nil", name, s)
		}
	}
}

func TestParseNoHeader(t *testing.T) {
	doc, err := Parse(strings.NewReader("#define A 1\n#undef B\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Groups()) != 0 {
		t.Fatalf("groups = %d, want 0", len(doc.Groups()))
	}
}

func TestSingleLineHeader(t *testing.T) {
	doc, err := Parse(strings.NewReader("/** Console types */\n#define CONSOLE_PCBIOS\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	groups := doc.Groups()
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if len(groups[0].Header) != 1 || groups[0].Header[0] != "Console types" {
		t.Fatalf("header = %q", groups[0].Header)
	}
	if len(groups[0].Settings) != 1 || groups[0].Settings[0].Name != "CONSOLE_PCBIOS" {
		t.Fatalf("settings = %+v", groups[0].Settings)
	}
}

func TestEmitWithoutChangesIsEmpty(t *testing.T) {
	doc := parseGeneral(t)
	var buf bytes.Buffer
	if err := doc.EmitChanges(&buf); err != nil {
		t.Fatalf("EmitChanges: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("patch = %q, want empty", buf.String())
	}
}

func TestStageAndEmit(t *testing.T) {
	doc := parseGeneral(t)

	doc.StageSet(doc.Lookup("BANNER_TIMEOUT"), "50")
	doc.StageUnset(doc.Lookup("NET_PROTO_IPV6"))
	doc.StageSet(doc.Lookup("NET_PROTO_STP"), "")
	doc.StageUnset(doc.Lookup("NET_PROTO_FCOE")) // already inactive

	if doc.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", doc.Pending())
	}

	var buf bytes.Buffer
	if err := doc.EmitChanges(&buf); err != nil {
		t.Fatalf("EmitChanges: %v", err)
	}
	want := "#define\tBANNER_TIMEOUT\t50\t\n" +
		"#undef\tNET_PROTO_IPV6\t\t/* Enable IPv6 */\n" +
		"#define\tNET_PROTO_STP\t\t/* Spanning Tree protocol */\n"
	if buf.String() != want {
		t.Fatalf("patch =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestEmitOverrideUndefinesFirst(t *testing.T) {
	doc := parseGeneral(t)

	doc.StageSet(doc.Lookup("BANNER_TIMEOUT"), "50")
	doc.StageUnset(doc.Lookup("NET_PROTO_IPV6"))
	doc.StageSet(doc.Lookup("NET_PROTO_STP"), "")

	var buf bytes.Buffer
	if err := doc.EmitOverride(&buf); err != nil {
		t.Fatalf("EmitOverride: %v", err)
	}
	want := "#undef\tBANNER_TIMEOUT\n#define\tBANNER_TIMEOUT\t50\n" +
		"#undef\tNET_PROTO_IPV6\t/* Enable IPv6 */\n" +
		"#undef\tNET_PROTO_STP\n#define\tNET_PROTO_STP\t/* Spanning Tree protocol */\n"
	if buf.String() != want {
		t.Fatalf("override =\n%s\nwant\n%s", buf.String(), want)
	}

	// Every #define is preceded by an #undef of the same name.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if fields[0] != "#define" {
			continue
		}
		if i == 0 || strings.Fields(lines[i-1])[0] != "#undef" || strings.Fields(lines[i-1])[1] != fields[1] {
			t.Fatalf("line %d %q is not preceded by #undef %s", i, line, fields[1])
		}
	}
}

func TestStageSetToCurrentClearsEdit(t *testing.T) {
	doc := parseGeneral(t)
	s := doc.Lookup("BANNER_TIMEOUT")

	doc.StageSet(s, "50")
	doc.StageSet(s, "20")
	if _, ok := doc.Staged(s); ok {
		t.Fatal("setting back to the current value should clear the edit")
	}
	if doc.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", doc.Pending())
	}
}

func TestStagingIsOverwritable(t *testing.T) {
	for _, name := range []string{"BANNER_TIMEOUT", "NET_PROTO_FCOE", "NET_PROTO_LACP", "NET_PROTO_STP"} {
		t.Run(name, func(t *testing.T) {
			setThenUnset := parseGeneral(t)
			s := setThenUnset.Lookup(name)
			setThenUnset.StageSet(s, "7")
			setThenUnset.StageUnset(s)

			unsetOnly := parseGeneral(t)
			u := unsetOnly.Lookup(name)
			unsetOnly.StageUnset(u)

			a, aok := setThenUnset.Staged(s)
			b, bok := unsetOnly.Staged(u)
			if aok != bok || a != b {
				t.Fatalf("set+unset = %+v/%v, unset = %+v/%v", a, aok, b, bok)
			}

			unsetThenSet := parseGeneral(t)
			s = unsetThenSet.Lookup(name)
			unsetThenSet.StageUnset(s)
			unsetThenSet.StageSet(s, "7")

			setOnly := parseGeneral(t)
			u = setOnly.Lookup(name)
			setOnly.StageSet(u, "7")

			a, aok = unsetThenSet.Staged(s)
			b, bok = setOnly.Staged(u)
			if aok != bok || a != b {
				t.Fatalf("unset+set = %+v/%v, set = %+v/%v", a, aok, b, bok)
			}
		})
	}
}

func TestDuplicateNamesStagedIndependently(t *testing.T) {
	src := "/** Group */\n#define DUP 1\n#define DUP 1\n"
	doc, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second := doc.Groups()[0].Settings[1]
	doc.StageUnset(second)

	if _, ok := doc.Staged(doc.Lookup("DUP")); ok {
		t.Fatal("first DUP should not share the second's edit")
	}
	var buf bytes.Buffer
	if err := doc.EmitChanges(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "#undef\tDUP\t\t\n" {
		t.Fatalf("patch = %q", buf.String())
	}
}

func TestKeywordTable(t *testing.T) {
	tests := []struct {
		text   string
		active bool
	}{
		{"#define", true},
		{"//#undef", true},
		{"//#define", false},
		{"#undef", false},
	}
	for _, tc := range tests {
		kw, ok := parseKeyword(tc.text)
		if !ok {
			t.Fatalf("parseKeyword(%q) failed", tc.text)
		}
		if kw.String() != tc.text {
			t.Fatalf("String() = %q, want %q", kw.String(), tc.text)
		}
		if kw.Active() != tc.active {
			t.Fatalf("%s Active() = %v, want %v", tc.text, kw.Active(), tc.active)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "general.h")
	if err := os.WriteFile(path, []byte(generalH), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Filename != path {
		t.Fatalf("Filename = %q, want %q", doc.Filename, path)
	}
	if doc.Lookup("NET_PROTO_IPV6") == nil {
		t.Fatal("expected NET_PROTO_IPV6")
	}
}
