package source

import "testing"

func TestRepositoryStateIsStableForEquivalentLocations(t *testing.T) {
	a := RepositoryState("https://example.com/repo.git", TypeGit)
	b := RepositoryState("https://example.com/repo.git/", TypeGit)
	if a != b {
		t.Errorf("expected a trailing slash not to change the digest: %q != %q", a, b)
	}

	c := RepositoryState("https://Example.com/repo.git", TypeGit)
	if a != c {
		t.Errorf("expected host casing not to change the digest: %q != %q", a, c)
	}
}

func TestRepositoryStateDiffersByType(t *testing.T) {
	loc := "https://example.com/repo"
	git := RepositoryState(loc, TypeGit)
	pkg := RepositoryState(loc, TypePkg)
	dir := RepositoryState(loc, TypeDir)
	if git == pkg || git == dir || pkg == dir {
		t.Errorf("expected distinct types to hash differently for the same location: %q %q %q", git, pkg, dir)
	}
}

func TestRepositoryStateDiffersByLocation(t *testing.T) {
	a := RepositoryState("https://example.com/a.git", TypeGit)
	b := RepositoryState("https://example.com/b.git", TypeGit)
	if a == b {
		t.Errorf("expected different locations to hash differently")
	}
}

func TestRepositoryTypeOfInfersFromLocationShape(t *testing.T) {
	cases := map[string]RepositoryType{
		"https://github.com/example/repo.git": TypeGit,
		"git://example.com/repo":              TypeGit,
		"/var/pkgsynth/local-repo":            TypeDir,
		"./relative-repo":                     TypeDir,
		"https://pkg.example.com/1/stable":    TypePkg,
	}
	for loc, want := range cases {
		if got := RepositoryTypeOf(loc); got != want {
			t.Errorf("RepositoryTypeOf(%q) = %q, want %q", loc, got, want)
		}
	}
}
