package textutil

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips punctuation and joins words", in: "My Rule!! 2024", want: "my-rule-2024"},
		{name: "collapses hyphens and trims edges", in: "  a -- b  ", want: "a-b"},
		{name: "lowercases", in: "VIP Bundle", want: "vip-bundle"},
		{name: "folds accents", in: "Café Déluxe", want: "cafe-deluxe"},
		{name: "keeps existing hyphens", in: "two-for-one", want: "two-for-one"},
		{name: "empty input", in: "", want: ""},
		{name: "only punctuation", in: "!!!", want: ""},
		{name: "internal whitespace runs", in: "spring\t\nsale", want: "spring-sale"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.in); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestSlugifyStableUnderRepetition(t *testing.T) {
	titles := []string{"My Rule!! 2024", "  a -- b  ", "Café Déluxe", "plain"}
	for _, title := range titles {
		once := Slugify(title)
		if twice := Slugify(once); twice != once {
			t.Fatalf("expected slug %q to be stable, got %q", once, twice)
		}
	}
}
