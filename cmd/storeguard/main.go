package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"storeguard/internal/app"
)

func main() {
	addr := flag.String("addr", "", "listen address override (default from HTTP_ADDR)")
	backupOnce := flag.Bool("backup-once", false, "take a single snapshot and exit")
	flag.Parse()

	application, err := app.New(app.Options{Addr: *addr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *backupOnce {
		res, err := application.BackupOnce(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("backup ok: size=%d checksum=%s\n", res.Size, res.Checksum)
		return
	}

	if err := application.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
