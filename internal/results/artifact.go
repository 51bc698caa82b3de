package results

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stratbatch/internal/domain"
)

// lastResultPointer is the pointer file the engine drops into an artifact
// directory naming the latest export.
type lastResultPointer struct {
	LatestBacktest string `json:"latest_backtest"`
}

// parseArtifactDir reads the structured export named by a directory's
// .last_result.json pointer. The export may be a plain JSON file or a ZIP
// archive containing one. Returns false when the directory holds no
// parseable completed run.
func parseArtifactDir(dir, strategy string) (domain.Metrics, bool) {
	ptrData, err := os.ReadFile(filepath.Join(dir, ".last_result.json"))
	if err != nil {
		return domain.Metrics{}, false
	}

	var ptr lastResultPointer
	if err := json.Unmarshal(ptrData, &ptr); err != nil || ptr.LatestBacktest == "" {
		return domain.Metrics{}, false
	}

	payload, ok := readExport(dir, ptr.LatestBacktest)
	if !ok {
		return domain.Metrics{}, false
	}
	return ParseStructured(payload, strategy)
}

// readExport loads the named export, resolving the JSON-next-to-ZIP
// convention: a pointer to "x.zip" is satisfied by "x.json" when present,
// otherwise by the first results JSON inside the archive.
func readExport(dir, latest string) ([]byte, bool) {
	jsonName := strings.TrimSuffix(latest, ".zip")
	if !strings.HasSuffix(jsonName, ".json") {
		jsonName += ".json"
	}

	if data, err := os.ReadFile(filepath.Join(dir, jsonName)); err == nil {
		return data, true
	}

	if strings.HasSuffix(latest, ".zip") {
		return readExportFromZip(filepath.Join(dir, latest))
	}
	return nil, false
}

// readExportFromZip extracts the backtest results JSON from a ZIP export,
// skipping the bundled engine config.
func readExportFromZip(path string) ([]byte, bool) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, false
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".json") || strings.HasSuffix(f.Name, "_config.json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}
