package davis

import (
	"time"

	"github.com/chrissnell/vantaged/internal/types"
	"github.com/chrissnell/vantaged/internal/vantage"
	"github.com/chrissnell/vantaged/internal/wxcalc"
)

const (
	null         = types.Null
	maxRadiation = 1800
	maxWindSpeed = 250
)

func sentinel16(v uint16) bool {
	return v == 0xFFFF || v == 0x7FFF
}

// byteTemp decodes the 90-degree offset byte used by extra, soil and leaf
// temperatures.
func byteTemp(v uint8) float64 {
	if v == 0xFF {
		return null
	}
	return float64(v) - 90
}

func byteValue(v uint8) float64 {
	if v == 0xFF {
		return null
	}
	return float64(v)
}

// consoleVoltage converts the console battery reading to volts.
func consoleVoltage(v uint16) float64 {
	return float64(v) * 300 / 512 / 100
}

// lastGood remembers the most recent valid value of each channel the
// console may momentarily report as missing.
type lastGood struct {
	outTemp, inTemp         float64
	outHumidity, inHumidity float64
	extraTemp               [3]float64
	extraHumid              [2]float64
	soilTemp                [4]float64
	leafTemp                [2]float64
}

func newLastGood() lastGood {
	g := lastGood{outTemp: null, inTemp: null, outHumidity: null, inHumidity: null}
	for _, arr := range [][]float64{g.extraTemp[:], g.extraHumid[:], g.soilTemp[:], g.leafTemp[:]} {
		for i := range arr {
			arr[i] = null
		}
	}
	return g
}

// hold returns v, or the remembered value when v is missing, and refreshes
// the memory.
func hold(v float64, last *float64) float64 {
	if types.IsNull(v) {
		return *last
	}
	*last = v
	return v
}

// sampleDelta turns a console day total into the amount that fell since the
// previous LOOP. A smaller total than before means the day rolled over and
// everything counted belongs to this sample.
func sampleDelta(total uint16, prev *int, divisor float64) float64 {
	if sentinel16(total) {
		return 0
	}
	t := int(total)
	if *prev < 0 {
		*prev = t
		return 0
	}
	d := t - *prev
	if d < 0 {
		d = t
	}
	*prev = t
	return float64(d) / divisor
}

// loopPacket converts a LOOP snapshot. Barometer calibration is applied here
// so station pressure and altimeter reflect it.
func (s *Station) loopPacket(l vantage.LoopData, at time.Time) types.LoopPacket {
	p := types.NewLoopPacket(at)
	g := &s.lastGood

	p.SampleRain = sampleDelta(l.DayRain, &s.sampleRain, s.collector.TicksPerInch)
	p.SampleET = sampleDelta(l.DayET, &s.sampleET, 1000)

	p.RxCheckPercent = null
	if s.rx.percent >= 0 {
		p.RxCheckPercent = s.rx.percent
	}

	outTemp := null
	if l.OutTemp != 0x7FFF {
		outTemp = float64(l.OutTemp) / 10
	}
	p.OutTemp = hold(outTemp, &g.outTemp)

	if l.Barometer != 0xFFFF && l.Barometer != 0 {
		p.Barometer = s.cfg.Calibration.Barometer.Apply(float64(l.Barometer) / 1000)
		p.StationPressure = wxcalc.SeaLevelToStation(p.Barometer, s.tempAvg.Mean(), float64(s.position.Elevation))
		p.Altimeter = wxcalc.Altimeter(p.StationPressure, float64(s.position.Elevation))
	}

	inTemp := null
	if l.InTemp != 0x7FFF {
		inTemp = float64(l.InTemp) / 10
	}
	p.InTemp = hold(inTemp, &g.inTemp)
	p.InHumidity = hold(byteValue(l.InHumidity), &g.inHumidity)
	p.OutHumidity = hold(byteValue(l.OutHumidity), &g.outHumidity)

	if l.WindSpeed != 0xFF {
		p.WindSpeed = float64(l.WindSpeed)
		p.WindGust = max(p.WindSpeed, s.archiveGust)
	}
	s.archiveGust = 0
	if !sentinel16(l.WindDir) {
		p.WindDir = float64(l.WindDir)
		p.WindGustDir = p.WindDir
	}
	s.windDirs.Add(at, p.WindDir)
	p.TenMinAvgWindDir = wxcalc.ConsensusDirection(s.windDirs.Values())
	if l.TenMinAvgWind != 0xFF {
		p.TenMinAvgWindSpeed = float64(l.TenMinAvgWind)
	}

	if !sentinel16(l.RainRate) {
		p.RainRate = float64(l.RainRate) / s.collector.TicksPerInch
	}
	if l.UV != 0xFF {
		p.UV = float64(l.UV) / 10
	}
	if !sentinel16(l.Radiation) && l.Radiation <= maxRadiation {
		p.Radiation = float64(l.Radiation)
	}

	if !sentinel16(l.StormRain) {
		p.StormRain = float64(l.StormRain) / s.collector.TicksPerInch
	}
	if !sentinel16(l.DayRain) {
		p.DayRain = float64(l.DayRain) / s.collector.TicksPerInch
	}
	if !sentinel16(l.MonthRain) {
		p.MonthRain = float64(l.MonthRain) / s.collector.TicksPerInch
	}
	if !sentinel16(l.YearRain) {
		p.YearRain = float64(l.YearRain) / s.collector.TicksPerInch
	}
	if !sentinel16(l.DayET) {
		p.DayET = float64(l.DayET) / 1000
	}
	if !sentinel16(l.MonthET) {
		p.MonthET = float64(l.MonthET) / 100
	}
	if !sentinel16(l.YearET) {
		p.YearET = float64(l.YearET) / 100
	}

	p.Dewpoint = wxcalc.Dewpoint(p.OutTemp, p.OutHumidity)
	p.Heatindex = wxcalc.HeatIndex(p.OutTemp, p.OutHumidity)
	p.Windchill = wxcalc.WindChill(p.OutTemp, p.WindSpeed)

	p.ForecastIcon = int(l.ForecastIcon)
	p.ForecastRule = int(l.ForecastRule)
	p.TxBatteryStatus = int(l.TxBattery)
	p.ConsBatteryVoltage = consoleVoltage(l.ConsBattVoltage)

	for i := range p.ExtraTemp {
		p.ExtraTemp[i] = hold(byteTemp(l.ExtraTemp[i]), &g.extraTemp[i])
	}
	for i := range p.SoilTemp {
		p.SoilTemp[i] = hold(byteTemp(l.SoilTemp[i]), &g.soilTemp[i])
	}
	for i := range p.LeafTemp {
		p.LeafTemp[i] = hold(byteTemp(l.LeafTemp[i]), &g.leafTemp[i])
	}
	for i := range p.ExtraHumid {
		p.ExtraHumid[i] = hold(byteValue(l.ExtraHumid[i]), &g.extraHumid[i])
	}
	for i := range p.SoilMoist {
		p.SoilMoist[i] = byteValue(l.SoilMoist[i])
	}
	for i := range p.LeafWet {
		p.LeafWet[i] = byteValue(l.LeafWet[i])
	}
	return p
}

// archivePacket converts a calibrated console record.
func (s *Station) archivePacket(r vantage.ArchiveRecord) types.ArchivePacket {
	at := vantage.UnpackDateTime(r.Date, r.Time, s.loc)
	p := types.NewArchivePacket(at, s.interval)
	elevation := float64(s.position.Elevation)

	outTemp := null
	if r.OutTemp > -1500 && r.OutTemp < 1500 {
		outTemp = float64(r.OutTemp) / 10
		p.Set(types.OutTemp, outTemp)
	}

	if r.Barometer > 1000 && r.Barometer < 40000 {
		bar := float64(r.Barometer) / 1000
		p.Set(types.Barometer, bar)
		sp := wxcalc.SeaLevelToStation(bar, s.tempAvg.Mean(), elevation)
		p.Set(types.Pressure, sp)
		p.Set(types.Altimeter, wxcalc.Altimeter(sp, elevation))
	}

	if r.InTemp > -1500 && r.InTemp < 2000 {
		p.Set(types.InTemp, float64(r.InTemp)/10)
	}
	if r.InHumidity <= 100 {
		p.Set(types.InHumidity, float64(r.InHumidity))
	}
	outHumidity := null
	if r.OutHumidity <= 100 {
		outHumidity = float64(r.OutHumidity)
		p.Set(types.OutHumidity, outHumidity)
	}

	windSpeed := null
	if r.AvgWindSpeed <= maxWindSpeed {
		windSpeed = float64(r.AvgWindSpeed)
		p.Set(types.WindSpeed, windSpeed)
	}
	if r.HighWindSpeed <= maxWindSpeed {
		p.Set(types.WindGust, float64(r.HighWindSpeed))
	}
	if r.PrevWindDir < 16 {
		p.Set(types.WindDir, float64(r.PrevWindDir)*22.5)
	}
	if r.HighWindDir < 16 {
		p.Set(types.WindGustDir, float64(r.HighWindDir)*22.5)
	}

	p.Set(types.RainRate, float64(r.HighRainRate)/s.collector.TicksPerInch)
	p.Set(types.Rain, float64(vantage.RainClicks(r.Rain))/s.collector.TicksPerInch)

	p.Set(types.Dewpoint, wxcalc.Dewpoint(outTemp, outHumidity))
	p.Set(types.Heatindex, wxcalc.HeatIndex(outTemp, outHumidity))
	p.Set(types.Windchill, wxcalc.WindChill(outTemp, windSpeed))

	if r.ET != 0xFF {
		p.Set(types.ET, float64(r.ET)/1000)
	}
	if r.Radiation != 0x7FFF && r.Radiation <= maxRadiation {
		p.Set(types.Radiation, float64(r.Radiation))
	}
	if r.UV != 0xFF {
		p.Set(types.UV, float64(r.UV)/10)
	}

	temps := []struct {
		idx types.DataIndex
		raw uint8
	}{
		{types.ExtraTemp1, r.ExtraTemp[0]}, {types.ExtraTemp2, r.ExtraTemp[1]}, {types.ExtraTemp3, r.ExtraTemp[2]},
		{types.SoilTemp1, r.SoilTemp[0]}, {types.SoilTemp2, r.SoilTemp[1]},
		{types.SoilTemp3, r.SoilTemp[2]}, {types.SoilTemp4, r.SoilTemp[3]},
		{types.LeafTemp1, r.LeafTemp[0]}, {types.LeafTemp2, r.LeafTemp[1]},
	}
	for _, t := range temps {
		p.Set(t.idx, byteTemp(t.raw))
	}
	plain := []struct {
		idx types.DataIndex
		raw uint8
	}{
		{types.ExtraHumid1, r.ExtraHumid[0]}, {types.ExtraHumid2, r.ExtraHumid[1]},
		{types.SoilMoist1, r.SoilMoist[0]}, {types.SoilMoist2, r.SoilMoist[1]},
		{types.SoilMoist3, r.SoilMoist[2]}, {types.SoilMoist4, r.SoilMoist[3]},
		{types.LeafWet1, r.LeafWet[0]}, {types.LeafWet2, r.LeafWet[1]},
	}
	for _, v := range plain {
		p.Set(v.idx, byteValue(v.raw))
	}

	if s.rx.percent >= 0 {
		p.Set(types.RxCheckPercent, s.rx.percent)
	}
	if s.haveLoop {
		p.Set(types.TxBatteryStatus, float64(s.lastLoop.TxBatteryStatus))
		p.Set(types.ConsBatteryVoltage, s.lastLoop.ConsBatteryVoltage)
	}
	return p
}

// processArchivePage handles the new records of one dump page and returns
// how many there were. Records at or before the watermark are skipped.
func (s *Station) processArchivePage(page vantage.ArchivePage) int {
	start := s.firstRecord
	s.firstRecord = 0
	s.currentPage++

	fresh := 0
	for i := start; i < vantage.RecordsPerPage; i++ {
		rec, err := vantage.DecodeArchiveRecord(page.Records[i])
		if err != nil {
			s.logger.Errorf("decoding archive record %d of page %d: %v", i, page.Sequence, err)
			continue
		}
		if rec.Empty() || !vantage.PackedAfter(rec.Date, rec.Time, s.markDate, s.markTime) {
			continue
		}
		fresh++
		s.archiveRetry = false
		s.handleArchiveRecord(rec)
	}
	return fresh
}

func (s *Station) handleArchiveRecord(rec vantage.ArchiveRecord) {
	if rec.HighWindSpeed <= maxWindSpeed {
		s.archiveGust = max(s.archiveGust, float64(rec.HighWindSpeed))
	}

	s.cfg.Calibration.ApplyArchive(&rec)
	p := s.archivePacket(rec)
	s.tempAvg.Add(p.DateTime, p.Value(types.OutTemp))

	if s.files != nil {
		if err := s.files.AppendArchiveRecord(rec, s.interval, s.collector.TypeCode); err != nil {
			s.logger.Errorf("storing archive record %s: %v", p.DateTime.Format(time.DateTime), err)
		}
	}
	if s.hilow != nil {
		var err error
		if s.running {
			err = s.hilow.UpdateArchive(s.ctx, p)
		} else {
			err = s.hilow.StoreArchive(s.ctx, p)
		}
		if err != nil {
			s.logger.Errorf("updating hi-low store: %v", err)
		}
	}

	s.markDate, s.markTime = rec.Date, rec.Time
	s.metrics.ArchiveRecords.Inc()
	s.emit(Event{Type: EventArchiveRecord, Archive: &p})
}
