package decision

import (
	"fmt"
	"strings"
)

// Validate enforces the decision bounds. Hold decisions are always valid;
// open decisions must carry every parameter inside its range.
func Validate(d *Decision) error {
	if d == nil {
		return fmt.Errorf("nil decision")
	}

	switch d.Operation {
	case OpHold:
		return nil
	case OpClose:
		if d.Close == nil || d.Close.Symbol == "" {
			return fmt.Errorf("close decision without symbol")
		}
		return nil
	case OpOpen:
	default:
		return fmt.Errorf("unknown operation %q", d.Operation)
	}

	o := d.Open
	if o == nil {
		return fmt.Errorf("open decision without parameters")
	}
	if o.Symbol == "" {
		return fmt.Errorf("open decision without symbol")
	}
	if o.Direction != "long" && o.Direction != "short" {
		return fmt.Errorf("invalid direction %q", o.Direction)
	}
	if o.TargetPortionOfBalance <= 0 || o.TargetPortionOfBalance > 1 {
		return fmt.Errorf("target portion %.3f outside (0,1]", o.TargetPortionOfBalance)
	}
	if o.Leverage < 1 || o.Leverage > 10 {
		return fmt.Errorf("leverage %d outside [1,10]", o.Leverage)
	}
	if o.StopLossPct < 0.5 || o.StopLossPct > 10 {
		return fmt.Errorf("stop loss %.2f%% outside [0.5,10]", o.StopLossPct)
	}
	if o.TakeProfitPct < 1 || o.TakeProfitPct > 50 {
		return fmt.Errorf("take profit %.2f%% outside [1,50]", o.TakeProfitPct)
	}
	if n := len(strings.TrimSpace(d.Reason)); n < 10 || n > 500 {
		return fmt.Errorf("reason length %d outside [10,500]", n)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %.3f outside [0,1]", d.Confidence)
	}
	return nil
}

// Warnings flags suspicious but admissible open decisions: poor
// reward-to-risk, low confidence or oversized notional exposure.
func Warnings(d *Decision) []string {
	if d == nil || d.Operation != OpOpen || d.Open == nil {
		return nil
	}

	var out []string
	o := d.Open
	if o.StopLossPct > 0 {
		if rr := o.TakeProfitPct / o.StopLossPct; rr < 1.0 {
			out = append(out, fmt.Sprintf("reward-to-risk %.2f below 1.0", rr))
		}
	}
	if d.Confidence < 0.3 {
		out = append(out, fmt.Sprintf("low confidence %.2f", d.Confidence))
	}
	if exposure := o.TargetPortionOfBalance * float64(o.Leverage); exposure > 0.5 {
		out = append(out, fmt.Sprintf("notional exposure %.2fx of balance", exposure))
	}
	return out
}
