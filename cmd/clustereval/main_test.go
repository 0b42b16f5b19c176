package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/clustereval/internal/config"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

// resetFlags restores every flag to its default so package-level command
// state does not leak between tests.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeCampaign writes a four-cluster campaign and points the environment
// at it with a bolt store in the same directory.
func writeCampaign(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"clusters.txt": "a|||0|||0|||0|||1\n" +
			"b|||1|||1|||4|||2\n" +
			"c|||2|||2|||4|||3\n" +
			"d|||3|||3|||6|||4\n" +
			"broken\n",
		"baseline.json":  `{"1": {"Labels": ["identifier"], "Semantic": "names", "Syntactic": "Name", "Description": "d", "Q1_Answer": "Yes"}}`,
		"candidate.json": `[{"c1": {"Syntactic Label": "Variable", "Semantic Tags": ["a"], "Description": "d", "Unique tokens": ["a"]}}]`,
		"corpus.txt":     "a\nb\nc\nd\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	t.Setenv("CLUSTEREVAL_CAMPAIGN_OCCURRENCES_PATH", filepath.Join(dir, "clusters.txt"))
	t.Setenv("CLUSTEREVAL_CAMPAIGN_BASELINE_PATH", filepath.Join(dir, "baseline.json"))
	t.Setenv("CLUSTEREVAL_CAMPAIGN_CANDIDATE_PATH", filepath.Join(dir, "candidate.json"))
	t.Setenv("CLUSTEREVAL_CAMPAIGN_CORPUS_PATH", filepath.Join(dir, "corpus.txt"))
	t.Setenv("CLUSTEREVAL_CAMPAIGN_BATCH_SIZE", "2")
	t.Setenv("CLUSTEREVAL_STORE_BACKEND", "bolt")
	t.Setenv("CLUSTEREVAL_STORE_BOLT_PATH", filepath.Join(dir, "progress.db"))
	t.Setenv("CLUSTEREVAL_LOGGING_LEVEL", "error")
	return dir
}

func writeExport(t *testing.T, dir string) string {
	t.Helper()
	evals := map[string]*evaluation.Evaluation{
		"1": {ClusterID: "1", Annotator: "ann", Judgment: evaluation.Judgment{
			Acceptability: evaluation.AcceptableYes,
			Precision:     evaluation.PrecisionMore,
			Quality:       evaluation.QualitySame,
		}, CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		"2": {ClusterID: "2", Annotator: "ann", Judgment: evaluation.Judgment{
			Acceptability:     evaluation.AcceptableNo,
			AcceptabilityNote: "wrong role",
			Precision:         evaluation.PrecisionSame,
			Quality:           evaluation.QualityMore,
		}, CreatedAt: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)},
	}
	path := filepath.Join(dir, "in.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, evaluation.Export(f, evals))
	require.NoError(t, f.Close())
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clustereval.yaml")

	out, err := execute(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default configuration")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	def := config.Default()
	assert.Equal(t, def.Campaign.BatchSize, cfg.Campaign.BatchSize)
	assert.Equal(t, def.Store, cfg.Store)
	assert.Equal(t, def.Server, cfg.Server)

	_, err = execute(t, "config", "init", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, "config", "init", "-o", path, "--force")
	assert.NoError(t, err)
}

func TestConfigInit_Stdout(t *testing.T) {
	out, err := execute(t, "config", "init", "-o", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 50")
	assert.Contains(t, out, "CLUSTEREVAL_STORE_BACKEND")
}

func TestConfigShow_EnvOverride(t *testing.T) {
	t.Setenv("CLUSTEREVAL_CAMPAIGN_BATCH_SIZE", "7")
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 7")
}

func TestIndex(t *testing.T) {
	dir := writeCampaign(t)

	out, err := execute(t, "index", filepath.Join(dir, "clusters.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "Clusters: 4")
	assert.Contains(t, out, "Rejected: 1")
	assert.Contains(t, out, "line 5")

	out, err = execute(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "Batches: 2 of 2")
}

func TestIndex_MissingFile(t *testing.T) {
	_, err := execute(t, "index", filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestImportExportRoundTrip(t *testing.T) {
	dir := writeCampaign(t)
	in := writeExport(t, dir)

	out, err := execute(t, "import", in, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "2 evaluations would be imported")

	out, err = execute(t, "import", in)
	require.NoError(t, err)
	assert.Contains(t, out, "2 evaluations imported")

	exported := filepath.Join(dir, "out.json")
	_, err = execute(t, "export", "-o", exported)
	require.NoError(t, err)

	f, err := os.Open(exported)
	require.NoError(t, err)
	defer f.Close()
	got, err := evaluation.Import(f)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, evaluation.AcceptableNo, got["2"].Acceptability)
	assert.Equal(t, "wrong role", got["2"].AcceptabilityNote)
	assert.True(t, got["1"].CreatedAt.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))

	// Importing again replaces instead of conflicting.
	_, err = execute(t, "import", in)
	assert.NoError(t, err)
}

func TestImport_BadFile(t *testing.T) {
	dir := writeCampaign(t)
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": {"cluster_id": "2"}}`), 0o600))

	_, err := execute(t, "import", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names cluster")
}

func TestImport_SkipsClustersOutsideCampaign(t *testing.T) {
	dir := writeCampaign(t)
	evals := map[string]*evaluation.Evaluation{
		"1": {ClusterID: "1", Judgment: evaluation.Judgment{
			Acceptability: evaluation.AcceptableYes,
			Precision:     evaluation.PrecisionSame,
			Quality:       evaluation.QualitySame,
		}, CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		"999": {ClusterID: "999", Judgment: evaluation.Judgment{
			Acceptability: evaluation.AcceptableYes,
			Precision:     evaluation.PrecisionSame,
			Quality:       evaluation.QualitySame,
		}, CreatedAt: time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC)},
	}
	in := filepath.Join(dir, "mixed.json")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, evaluation.Export(f, evals))
	require.NoError(t, f.Close())

	out, err := execute(t, "import", in, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "1 evaluations skipped, clusters not in the campaign: 999")
	assert.Contains(t, out, "1 evaluations would be imported")

	out, err = execute(t, "import", in)
	require.NoError(t, err)
	assert.Contains(t, out, "999")
	assert.Contains(t, out, "1 evaluations imported")

	exported := filepath.Join(dir, "out.json")
	_, err = execute(t, "export", "-o", exported)
	require.NoError(t, err)
	ef, err := os.Open(exported)
	require.NoError(t, err)
	defer ef.Close()
	got, err := evaluation.Import(ef)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NotContains(t, got, "999")

	out, err = execute(t, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "acceptability,Yes,1,100.0")
}

func TestSummary(t *testing.T) {
	dir := writeCampaign(t)
	_, err := execute(t, "import", writeExport(t, dir))
	require.NoError(t, err)

	out, err := execute(t, "summary")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "criterion,judgment,count,percentage", lines[0])
	assert.Contains(t, out, "acceptability,Yes,1,50.0")
	assert.Contains(t, out, "acceptability,No,1,50.0")
}

func TestStatus(t *testing.T) {
	dir := writeCampaign(t)
	_, err := execute(t, "import", writeExport(t, dir))
	require.NoError(t, err)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "2/4")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "new")

	out, err = execute(t, "status", "--open")
	require.NoError(t, err)
	assert.NotContains(t, out, "done")
}

func TestStatus_MissingCampaign(t *testing.T) {
	t.Setenv("CLUSTEREVAL_STORE_BACKEND", "memory")
	t.Setenv("CLUSTEREVAL_CAMPAIGN_OCCURRENCES_PATH", "")
	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "occurrences_path")
}

func TestMonitor_RejectsInterval(t *testing.T) {
	_, err := execute(t, "monitor", "--interval", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	writeCampaign(t)
	port := freePort(t)
	t.Setenv("CLUSTEREVAL_STORE_BACKEND", "memory")
	t.Setenv("CLUSTEREVAL_SERVER_HTTP_HOST", "127.0.0.1")
	t.Setenv("CLUSTEREVAL_SERVER_HTTP_PORT", fmt.Sprint(port))
	resetFlags(rootCmd)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var health struct {
		Status   string `json:"status"`
		Clusters int    `json:"clusters"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&health) == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 4, health.Clusters)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
