package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ngasd/ngasd/internal/config"
	"github.com/ngasd/ngasd/internal/diskinfo"
	"github.com/ngasd/ngasd/internal/disks"
	"github.com/ngasd/ngasd/internal/inventory"
	"github.com/ngasd/ngasd/internal/logging"
	"github.com/ngasd/ngasd/internal/metadata"
	"github.com/ngasd/ngasd/internal/notification"
)

func main() {
	mount := flag.String("mount", "", "Mount point of the disk")
	rewrite := flag.Bool("rewrite", false, "Rewrite the marker file from the metadata store")
	configPath := flag.String("config", "", "Path to configuration file (with -rewrite)")
	diskID := flag.String("disk-id", "", "Disk id (with -rewrite); defaults to the id found on the disk")
	flag.Parse()

	if *mount == "" {
		log.Fatal("Error: -mount parameter is required")
	}

	if *rewrite {
		if err := rewriteMarker(*configPath, *mount, *diskID); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}

	doc, err := diskinfo.Read(*mount)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	data, err := diskinfo.Encode(doc)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	fmt.Println(string(data))
}

func rewriteMarker(configPath, mount, diskID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if diskID == "" {
		if diskID, err = localDiskID(mount); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gateway, err := metadata.NewGateway(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = gateway.Close() }()

	logger := logging.Global()
	dumper := disks.NewDumper(gateway, notification.NewLogNotifier(logger), cfg.Node.RootDir, logger)
	doc, err := dumper.DumpDiskInfo(ctx, cfg.Node.HostID, diskID, mount)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("disk %s not dumped: unknown to the metadata store or marker file read-only", diskID)
	}
	return nil
}

// localDiskID reads the id the inventory stored on the disk, falling back to the marker file
func localDiskID(mount string) (string, error) {
	data, err := os.ReadFile(filepath.Join(mount, inventory.DiskIDFile))
	if err == nil && strings.TrimSpace(string(data)) != "" {
		return strings.TrimSpace(string(data)), nil
	}

	doc, derr := diskinfo.Read(mount)
	if derr != nil {
		return "", fmt.Errorf("cannot determine disk id of %s, use -disk-id", mount)
	}
	return doc.Disk.DiskID, nil
}
