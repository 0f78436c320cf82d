package models

// Source identifies the adapter that produced an event.
type Source int16

// Registered sources. Values are persisted — never renumber.
const (
	SourceSafetyMessage  Source = 1 // government disaster text-message feed
	SourceQuakeNotice    Source = 2 // KMA domestic earthquake notice (HTML)
	SourceQuakeAlert     Source = 3 // KMA PEWS early-warning binary stream
	SourceForestFire     Source = 4 // forest fire situation board (JSON)
	SourceWeatherWarning Source = 5 // KMA weather warning open API (CSV)
)

var sourceNames = map[Source]string{
	SourceSafetyMessage:  "safety_message",
	SourceQuakeNotice:    "quake_notice",
	SourceQuakeAlert:     "quake_alert",
	SourceForestFire:     "forest_fire",
	SourceWeatherWarning: "weather_warning",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is a registered source tag.
func (s Source) Valid() bool {
	_, ok := sourceNames[s]
	return ok
}

// Kind is the event category.
type Kind int16

// Event categories. Values are persisted — never renumber.
const (
	KindEarthquake         Kind = 1
	KindEarthquakeTsunami  Kind = 2
	KindTsunami            Kind = 3
	KindVolcano            Kind = 4
	KindTyphoon            Kind = 5
	KindHeavyRain          Kind = 6
	KindHeavySnow          Kind = 7
	KindStrongWind         Kind = 8
	KindHighSeas           Kind = 9
	KindColdWave           Kind = 10
	KindHeatWave           Kind = 11
	KindDrought            Kind = 12
	KindYellowDust         Kind = 13
	KindFineDust           Kind = 14
	KindFog                Kind = 15
	KindFlood              Kind = 16
	KindInundation         Kind = 17
	KindLandslide          Kind = 18
	KindDamFailure         Kind = 19
	KindForestFire         Kind = 20
	KindFire               Kind = 21
	KindExplosion          Kind = 22
	KindCollapse           Kind = 23
	KindTrafficAccident    Kind = 24
	KindPowerOutage        Kind = 25
	KindGasLeak            Kind = 26
	KindWaterOutage        Kind = 27
	KindInfectiousDisease  Kind = 28
	KindLivestockDisease   Kind = 29
	KindMarineAccident     Kind = 30
	KindChemicalSpill      Kind = 31
	KindTerror             Kind = 32
	KindCivilDefense       Kind = 33
	KindAirRaid            Kind = 34
	KindMissingPerson      Kind = 35
	KindOther              Kind = 36
)

var kindNames = map[Kind]string{
	KindEarthquake:        "earthquake",
	KindEarthquakeTsunami: "earthquake_tsunami",
	KindTsunami:           "tsunami",
	KindVolcano:           "volcano",
	KindTyphoon:           "typhoon",
	KindHeavyRain:         "heavy_rain",
	KindHeavySnow:         "heavy_snow",
	KindStrongWind:        "strong_wind",
	KindHighSeas:          "high_seas",
	KindColdWave:          "cold_wave",
	KindHeatWave:          "heat_wave",
	KindDrought:           "drought",
	KindYellowDust:        "yellow_dust",
	KindFineDust:          "fine_dust",
	KindFog:               "fog",
	KindFlood:             "flood",
	KindInundation:        "inundation",
	KindLandslide:         "landslide",
	KindDamFailure:        "dam_failure",
	KindForestFire:        "forest_fire",
	KindFire:              "fire",
	KindExplosion:         "explosion",
	KindCollapse:          "collapse",
	KindTrafficAccident:   "traffic_accident",
	KindPowerOutage:       "power_outage",
	KindGasLeak:           "gas_leak",
	KindWaterOutage:       "water_outage",
	KindInfectiousDisease: "infectious_disease",
	KindLivestockDisease:  "livestock_disease",
	KindMarineAccident:    "marine_accident",
	KindChemicalSpill:     "chemical_spill",
	KindTerror:            "terror",
	KindCivilDefense:      "civil_defense",
	KindAirRaid:           "air_raid",
	KindMissingPerson:     "missing_person",
	KindOther:             "other",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether k is a known event category.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Level is the severity of an event, 1 (lowest) through 5 (highest).
type Level int16

// Severity levels.
const (
	LevelInfo     Level = 1
	LevelMinor    Level = 2
	LevelModerate Level = 3
	LevelSevere   Level = 4
	LevelCritical Level = 5
)

var levelNames = map[Level]string{
	LevelInfo:     "info",
	LevelMinor:    "minor",
	LevelModerate: "moderate",
	LevelSevere:   "severe",
	LevelCritical: "critical",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether l is within the 1..5 severity range.
func (l Level) Valid() bool {
	return l >= LevelInfo && l <= LevelCritical
}
