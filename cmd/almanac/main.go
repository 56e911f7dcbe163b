package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chrissnell/vantaged/pkg/almanac"
)

func main() {
	var (
		timeStr = flag.String("time", "", "Time to compute for (RFC3339, e.g. 2024-01-15T12:00:00-07:00; default: now)")
		lat     = flag.Float64("lat", 40.0, "Latitude in degrees, north positive")
		lon     = flag.Float64("lon", -105.0, "Longitude in degrees, east positive")
		elev    = flag.Float64("elev", 5280, "Elevation in feet")
		tz      = flag.String("tz", "Local", "Time zone for rise and set times")
	)
	flag.Parse()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading time zone: %v\n", err)
		os.Exit(1)
	}

	t := time.Now().In(loc)
	if *timeStr != "" {
		if t, err = time.Parse(time.RFC3339, *timeStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing time: %v\n", err)
			os.Exit(1)
		}
		t = t.In(loc)
	}

	a := almanac.Compute(t, *lat, *lon, *elev, loc)

	fmt.Printf("Almanac for %s at %.3f, %.3f\n", t.Format(time.RFC3339), *lat, *lon)
	fmt.Printf("  Solar noon:   %s\n", a.SolarNoon.Format("15:04:05"))
	fmt.Printf("  Sunrise:      %s\n", clock(a.Sunrise))
	fmt.Printf("  Sunset:       %s\n", clock(a.Sunset))
	day := int(a.DayLengthMinutes + 0.5)
	fmt.Printf("  Day length:   %dh %02dm\n", day/60, day%60)
	fmt.Printf("  Clear sky:    %.0f W/m²\n", a.ClearSkyRadiation)
	fmt.Printf("  Moon:         %s, %.1f%% lit, %.1f days old\n", a.Moon.Name, a.Moon.Illumination*100, a.Moon.AgeDays)
	if a.Moon.IsWaxing {
		fmt.Printf("  Direction:    Waxing\n")
	} else {
		fmt.Printf("  Direction:    Waning\n")
	}
	fmt.Printf("  Next new:     %s\n", a.NextNewMoon.Format("2006-01-02 15:04"))
	fmt.Printf("  Next full:    %s\n", a.NextFullMoon.Format("2006-01-02 15:04"))
}

func clock(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format("15:04:05")
}
