// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command featuretags extracts, composes and queries snapd feature tags.
//
// Subcommands:
//
//	extract    turn a telemetry journal into one test's feature file
//	compose    build per-system reports and reconcile reruns
//	diff       compare two systems, or a system with every known feature
//	dup        list tests whose features are covered by other tests
//	export     copy stored reports into a local directory
//	list       list stored timestamps and systems
//	feat       list or search features
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], newApp(os.Stdin, os.Stdout, os.Stderr))
	stop()
	os.Exit(code)
}
