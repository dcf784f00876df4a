package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestMatch(t *testing.T) {
	cases := map[string]language.Tag{
		"":                   language.English,
		"es-CL,es;q=0.9":     language.Spanish,
		"fr-FR, en;q=0.5":    language.English,
		"de":                 language.English,
		"en;q=0.4, es;q=0.8": language.Spanish,
	}
	for header, want := range cases {
		if got := Match(header); got != want {
			t.Fatalf("Match(%q)=%v, want %v", header, got, want)
		}
	}
}

func TestTranslate(t *testing.T) {
	if got := T(language.Spanish, "auth.tenant_inactive"); got != "Este colegio está inactivo." {
		t.Fatalf("unexpected spanish message %q", got)
	}
	if got := T(language.English, "auth.tenant_inactive"); got != "This school is inactive." {
		t.Fatalf("unexpected english message %q", got)
	}
	if got := T(language.English, "unknown.key"); got != "unknown.key" {
		t.Fatalf("unknown keys must echo, got %q", got)
	}
}

func TestCatalogsAreComplete(t *testing.T) {
	for key := range english {
		if _, ok := spanish[key]; !ok {
			t.Fatalf("missing spanish translation for %s", key)
		}
	}
}
