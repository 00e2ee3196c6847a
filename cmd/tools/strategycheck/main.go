package main

import (
	"flag"
	"fmt"
	"os"

	"abquant/internal/strategy"

	"github.com/yanun0323/logs"
)

// strategycheck reports LoadBars calls made outside OnInit in the given
// strategy package directories.
func main() {
	flag.Parse()
	dirs := flag.Args()
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	failed := false
	for _, dir := range dirs {
		report, err := strategy.CheckPackage(dir)
		if err != nil {
			logs.Errorf("check %s, err: %+v", dir, err)
			failed = true
			continue
		}
		fmt.Println(report.String())
		if !report.OK() {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
