// dirdump boots a board and prints its resource directory: platform
// properties, every module with its interrupts, the software devices and
// the ledger layout per class.
//
//	dirdump -board atmega328p
//	dirdump -file board.yaml -trapped
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/golang/glog"

	"hwarb-go/services/hal"
	"hwarb-go/services/hal/config"
	"hwarb-go/types"
)

var (
	boardName = flag.String("board", "", "built-in board: "+strings.Join(hal.BoardNames(), ", "))
	boardFile = flag.String("file", "", "YAML board description")
	trapped   = flag.Bool("trapped", false, "resolve through the trapped bridge")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(os.Stdout); err != nil {
		glog.Exitf("dirdump: %v", err)
	}
}

// run boots the selected board, dumps it to w and shuts it down again
// before returning, whatever the outcome.
func run(w io.Writer) (err error) {
	b, err := loadBoard()
	if err != nil {
		return err
	}
	h, err := hal.Boot(context.Background(), hal.Options{Board: b, Trapped: *trapped})
	if err != nil {
		return fmt.Errorf("boot %s: %w", b.Name, err)
	}
	defer func() {
		if cerr := h.Close(); err == nil {
			err = cerr
		}
	}()
	return dump(w, h)
}

func loadBoard() (hal.Board, error) {
	switch {
	case *boardFile != "" && *boardName != "":
		return hal.Board{}, errors.New("-board and -file are exclusive")
	case *boardFile != "":
		return config.LoadFile(*boardFile)
	case *boardName != "":
		return hal.LookupBoard(*boardName)
	}
	return hal.Board{}, errors.New("one of -board or -file is required")
}

func dump(w io.Writer, h *hal.HAL) error {
	p, err := h.Platform()
	if err != nil {
		return err
	}
	b := h.Board()
	fmt.Fprintf(w, "board %s: clock %d Hz, memory %#x+%#x\n", b.Name, p.Clock, p.Memory.Start, p.Memory.Size)
	for _, c := range p.CPUs {
		fmt.Fprintf(w, "  cpu%d %s\n", c.ID, c.Name)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nMODULE\tBASE\tSTRIDE\tCLK\tRATE\tCOMPAT\tIRQS")
	for _, m := range b.Modules {
		rec, err := h.FetchModule(m.Class, m.Record.ID)
		if err != nil {
			return err
		}
		irqs := make([]string, 0, len(rec.Interrupts))
		for _, irq := range rec.Interrupts {
			irqs = append(irqs, fmt.Sprintf("%v:%d/%v", irq.Module, irq.ID, irq.Trigger))
		}
		fmt.Fprintf(tw, "%v\t%#x\t%d\t%d\t%d\t%s\t%s\n",
			types.HWDev(m.Class, rec.ID), rec.Base, rec.Stride, rec.ClockID, rec.Clock, rec.Compat, strings.Join(irqs, " "))
	}
	fmt.Fprintln(tw, "\nSWDEV\tDEVICE\tPINMUX")
	for _, s := range b.Swdevs {
		rec, err := h.FetchSwdev(s.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%v\t%v\t%d\n", rec.ID, rec.Device, rec.PinMux)
	}
	fmt.Fprintln(tw, "\nLEDGER\tINSTANCES\tWIDTH")
	for _, c := range types.Classes() {
		words, err := h.Ledger(0, c)
		if err != nil {
			continue
		}
		fmt.Fprintf(tw, "%v\t%d\t%d\n", c, len(words), b.Width(c))
	}
	return tw.Flush()
}
