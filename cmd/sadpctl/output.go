package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/nerrad567/sadp-fleet/internal/campaign"
	"github.com/nerrad567/sadp-fleet/internal/device"
	"github.com/nerrad567/sadp-fleet/internal/reconfig"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printDevices renders records as an aligned table in enumeration order.
func printDevices(w io.Writer, records []device.Record) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MAC\tSERIAL\tMODEL\tIPV4\tMASK\tGATEWAY\tACTIVATED\tDHCP\tFIRMWARE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.HardwareAddress,
			r.SerialNumber,
			valueOr(r.Details.Model, "-"),
			r.IPv4Address,
			r.IPv4SubnetMask,
			r.IPv4Gateway,
			yesNo(r.Activated),
			yesNo(r.DHCPEnabled),
			valueOr(r.Details.FirmwareVersion, "-"),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d device(s)\n", len(records))
	return err
}

// printOutcomes renders reconfiguration outcomes, one row per device.
func printOutcomes(w io.Writer, outcomes []reconfig.Outcome) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MAC\tADDRESS\tRESULT\tCODE\tMESSAGE")
	for _, o := range outcomes {
		result := "ok"
		if !o.Success {
			result = o.Classification.String()
		}
		code := "-"
		if o.ErrorCode != 0 {
			code = strconv.Itoa(o.ErrorCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.HardwareAddress, o.Params.IPv4Address, result, code, o.Message)
	}
	return tw.Flush()
}

// printReport summarises a campaign run.
func printReport(w io.Writer, r campaign.Report) error {
	fmt.Fprintf(w, "discovered:  %d\n", r.Discovered)
	if n := len(r.Activation.Activated) + len(r.Activation.Failed); n > 0 {
		fmt.Fprintf(w, "activated:   %d of %d\n", len(r.Activation.Activated), n)
		for _, f := range r.Activation.Failed {
			fmt.Fprintf(w, "  %s (%s) refused activation, code %d\n", f.MAC, f.Serial, f.Code)
		}
	}
	for _, mac := range r.Unconfirmed {
		fmt.Fprintf(w, "  %s did not report activation in time\n", mac)
	}
	fmt.Fprintf(w, "reassigned:  %d succeeded, %d failed\n", r.Succeeded(), r.Failed())
	if r.Exhausted {
		fmt.Fprintln(w, "address pool exhausted before every device was reassigned")
	}
	if len(r.Outcomes) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return printOutcomes(w, r.Outcomes)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
