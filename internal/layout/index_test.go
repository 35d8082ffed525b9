package layout

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var fixtureFiles = []string{
	"dataset_description.json",
	"tpl-MNI152Lin/template_description.json",
	"tpl-MNI152Lin/tpl-MNI152Lin_res-01_T1w.nii.gz",
	"tpl-MNI152Lin/tpl-MNI152Lin_res-02_T1w.nii.gz",
	"tpl-MNI152Lin/tpl-MNI152Lin_res-01_T2w.nii.gz",
	"tpl-MNI152Lin/tpl-MNI152Lin_res-01_desc-brain_mask.nii.gz",
	"tpl-MNI152Lin/tpl-MNI152Lin_res-01_PD.nii.gz",
	"tpl-fsLR/template_description.json",
	"tpl-fsLR/tpl-fsLR_hemi-L_den-32k_sphere.surf.gii",
	"tpl-fsLR/tpl-fsLR_hemi-R_den-32k_sphere.surf.gii",
	"tpl-fsLR/tpl-fsLR_hemi-L_den-32k_midthickness.surf.gii",
	"tpl-fsLR/tpl-fsLR_space-fsaverage_hemi-L_den-164k_sphere.surf.gii",
	"tpl-NKI/cohort-1/tpl-NKI_cohort-1_res-01_T1w.nii.gz",
	"tpl-NKI/scripts/tpl-NKI_res-01_T1w.nii.gz",
	".git/tpl-Hidden_res-01_T1w.nii.gz",
}

func TestQueryExactMatch(t *testing.T) {
	idx := buildFixture(t)

	got, err := idx.Query("MNI152Lin", Query{"resolution": EqInt(1), "suffix": Eq("T1w")})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	want := []string{"tpl-MNI152Lin/tpl-MNI152Lin_res-01_T1w.nii.gz"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestQueryMultipleValues(t *testing.T) {
	idx := buildFixture(t)

	got, err := idx.Query("MNI152Lin", Query{
		"suffix":     Eq("T1w", "T2w"),
		"resolution": Eq("01"),
		"desc":       None(),
	})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	want := []string{
		"tpl-MNI152Lin/tpl-MNI152Lin_res-01_T1w.nii.gz",
		"tpl-MNI152Lin/tpl-MNI152Lin_res-01_T2w.nii.gz",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestQueryNullEntity(t *testing.T) {
	idx := buildFixture(t)

	got, err := idx.Query("fsLR", Query{
		"space":   None(),
		"hemi":    Eq("L"),
		"density": Eq("32k"),
		"suffix":  Eq("sphere"),
	})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(got) != 1 || !strings.HasSuffix(got[0], "tpl-fsLR_hemi-L_den-32k_sphere.surf.gii") {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestQueryNoMatchIsNotAnError(t *testing.T) {
	idx := buildFixture(t)

	got, err := idx.Query("fsLR", Query{"space": Eq("madeup")})
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestQueryIsDeterministicSubset(t *testing.T) {
	idx := buildFixture(t)
	all, err := idx.Query(AnyTemplate, nil)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	universe := map[string]bool{}
	for _, p := range all {
		universe[p] = true
	}

	queries := []Query{
		{"suffix": Eq("T1w")},
		{"hemi": Eq("L", "R")},
		{"desc": None()},
		{"extension": Eq("surf.gii")},
	}
	for _, q := range queries {
		first, err := idx.Query(AnyTemplate, q)
		if err != nil {
			t.Fatalf("query error: %v", err)
		}
		second, _ := idx.Query(AnyTemplate, q)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("query not deterministic (-first +second):\n%s", diff)
		}
		for _, p := range first {
			if !universe[p] {
				t.Fatalf("%s not part of the archive enumeration", p)
			}
		}
	}
}

func TestQueryNormalizesExtension(t *testing.T) {
	idx := buildFixture(t)
	q := Query{"extension": Eq("surf.gii"), "hemi": Eq("R")}

	got, err := idx.Query("fsLR", q)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one match, got %v", got)
	}
	if q["extension"][0].Value != "surf.gii" {
		t.Fatalf("caller query must not be mutated")
	}
}

func TestQueryUnknownEntity(t *testing.T) {
	idx := buildFixture(t)
	if _, err := idx.Query("fsLR", Query{"colour": Eq("blue")}); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestIndexSkipsIgnoredAndNonAssetFiles(t *testing.T) {
	idx := buildFixture(t)
	all, err := idx.Query(AnyTemplate, nil)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	for _, p := range all {
		if strings.Contains(p, "scripts/") || strings.HasPrefix(p, ".git") {
			t.Fatalf("ignored path indexed: %s", p)
		}
		if strings.HasSuffix(p, "template_description.json") || p == "dataset_description.json" {
			t.Fatalf("non asset indexed: %s", p)
		}
	}
	got, _ := idx.Query("NKI", Query{"cohort": EqInt(1)})
	if len(got) != 1 || got[0] != "tpl-NKI/cohort-1/tpl-NKI_cohort-1_res-01_T1w.nii.gz" {
		t.Fatalf("cohort subfolder not indexed: %v", got)
	}
}

func TestTemplatesSorted(t *testing.T) {
	idx := buildFixture(t)

	got, err := idx.Templates(nil)
	if err != nil {
		t.Fatalf("templates error: %v", err)
	}
	if diff := cmp.Diff([]string{"MNI152Lin", "NKI", "fsLR"}, got); diff != "" {
		t.Fatalf("unexpected templates (-want +got):\n%s", diff)
	}

	got, _ = idx.Templates(Query{"suffix": Eq("PD")})
	if diff := cmp.Diff([]string{"MNI152Lin"}, got); diff != "" {
		t.Fatalf("unexpected filtered templates (-want +got):\n%s", diff)
	}
}

func TestAccessorsEnumerateValues(t *testing.T) {
	idx := buildFixture(t)
	accessors := idx.vocab.Accessors()

	res, ok := accessors["resolution"]
	if !ok {
		t.Fatalf("resolution accessor missing")
	}
	got, err := res.Values(idx, Query{"template": Eq("MNI152Lin")})
	if err != nil {
		t.Fatalf("values error: %v", err)
	}
	if diff := cmp.Diff([]string{"01", "02"}, got); diff != "" {
		t.Fatalf("unexpected resolutions (-want +got):\n%s", diff)
	}

	if len(accessors) != len(idx.vocab.Entities) {
		t.Fatalf("one accessor per vocabulary entity expected")
	}
	if _, err := idx.Values("colour", nil); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestBuildMissingRoot(t *testing.T) {
	vocab, err := DefaultVocabulary()
	if err != nil {
		t.Fatalf("vocabulary error: %v", err)
	}
	_, err = Build(filepath.Join(t.TempDir(), "missing"), vocab)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestLoadVocabularyRejectsBrokenConfig(t *testing.T) {
	for name, data := range map[string]string{
		"not json":    "{",
		"no entities": `{"entities": []}`,
		"no template": `{"entities": [{"name": "suffix", "kind": "suffix"}]}`,
		"missing key": `{"entities": [{"name": "template", "kind": "template"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadVocabulary([]byte(data)); !errors.Is(err, ErrIndexUnavailable) {
				t.Fatalf("expected ErrIndexUnavailable, got %v", err)
			}
		})
	}
}

func TestIndexString(t *testing.T) {
	idx := buildFixture(t)
	lines := strings.Split(idx.String(), "\n")
	if lines[0] != "TemplateFlow Layout" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != " - Home: "+idx.root {
		t.Fatalf("unexpected home line: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], " - Templates:") {
		t.Fatalf("unexpected templates line: %q", lines[2])
	}
}

func buildFixture(t *testing.T) *Index {
	t.Helper()
	root := t.TempDir()
	for _, rel := range fixtureFiles {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	vocab, err := DefaultVocabulary()
	if err != nil {
		t.Fatalf("vocabulary error: %v", err)
	}
	idx, err := Build(root, vocab)
	if err != nil {
		t.Fatalf("build error: %v", err)
	}
	return idx
}
