package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sparkload/internal/storage"
)

// Data type labels used in archive file names.
const (
	CampaignData = "campaign_data"
	NamingKeys   = "naming_key"
)

// ArchiveName returns the canonical archival file name for one input,
// e.g. acme_facebook_2024_wave3_campaign_data.csv. Purely a labeling
// convention for the staging/backup layer; nothing reads it back.
func ArchiveName(t storage.Tenant, datatype string) string {
	return fmt.Sprintf("%s_%s_%d_wave%d_%s.csv", t.Client, t.Platform, t.Year, t.Wave, datatype)
}

func archiveInputs(p Params) error {
	if err := os.MkdirAll(p.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	for _, in := range []struct {
		src, datatype string
	}{
		{p.CampaignPath, CampaignData},
		{p.NamingPath, NamingKeys},
	} {
		dst := filepath.Join(p.ArchiveDir, ArchiveName(p.Tenant, in.datatype))
		if err := copyFile(in.src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("archive create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("archive copy %s: %w", dst, err)
	}
	return out.Close()
}
