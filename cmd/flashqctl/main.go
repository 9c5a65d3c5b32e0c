// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command flashqctl exercises a flashq.Queue backed by filedrv end to
// end: format, enqueue, dequeue and stats against one backing file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cznic/flashq"
	"github.com/cznic/flashq/filedrv"
)

var (
	oFile    = flag.String("f", "flashq.img", "backing file")
	oBlocks  = flag.Int("blocks", 256, "number of blocks")
	oPages   = flag.Int("pages", 128, "pages per block")
	oPage    = flag.Int("pagesize", 512, "page size in bytes")
	oFormat  = flag.Bool("format", false, "log the free block count from Init (the queue bookkeeping is formatted on every run)")
	oCommand = flag.String("cmd", "stats", "enqueue | dequeue | stats")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	drv, err := filedrv.Open(*oFile, *oBlocks, *oPages, *oPage)
	if err != nil {
		log.Fatal(err)
	}
	defer drv.Close()

	logger := log.New(os.Stderr, "flashqctl: ", 0)
	q := flashq.NewQueue(drv, logger, nil, flashq.Config{MaxStores: 1})

	n, err := q.Init(flashq.InitFormat)
	if err != nil {
		log.Fatal(err)
	}
	if *oFormat {
		log.Printf("formatted, %d blocks free", n)
	}

	h, err := q.Create(flashq.Attributes{})
	if err != nil {
		log.Fatal(err)
	}

	switch *oCommand {
	case "enqueue":
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			log.Fatal("no input on stdin")
		}
		sid, err := q.Enqueue(h, scanner.Bytes(), nil)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(sid)
	case "dequeue":
		obj, err := q.Dequeue(h)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d: %s\n", obj.SID, obj.Data)
		if err := q.Release(h, obj.SID); err != nil {
			log.Fatal(err)
		}
	case "stats":
		st := q.Stat(false)
		fmt.Printf("used=%d free=%d bad=%d errors=%d\n", st.UsedBlocks, st.FreeBlocks, st.BadBlocks, st.ErrorCount)
	default:
		log.Fatalf("unknown -cmd %q", *oCommand)
	}
}
