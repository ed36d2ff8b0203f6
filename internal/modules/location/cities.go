// README: Gazetteer of Pakistani provinces, cities and city-centre coordinates.
package location

import (
	"strings"

	"giftwave/internal/types"
)

var cityCentres = map[string]types.Point{
	"lahore":          {Lat: 31.5204, Lng: 74.3587},
	"karachi":         {Lat: 24.8607, Lng: 67.0011},
	"islamabad":       {Lat: 33.6844, Lng: 73.0479},
	"rawalpindi":      {Lat: 33.5651, Lng: 73.0169},
	"faisalabad":      {Lat: 31.4167, Lng: 73.0833},
	"multan":          {Lat: 30.1575, Lng: 71.5249},
	"peshawar":        {Lat: 34.0150, Lng: 71.5805},
	"quetta":          {Lat: 30.1798, Lng: 66.9750},
	"sialkot":         {Lat: 32.4927, Lng: 74.5313},
	"gujranwala":      {Lat: 32.1617, Lng: 74.1883},
	"sargodha":        {Lat: 32.0836, Lng: 72.6711},
	"bahawalpur":      {Lat: 29.3956, Lng: 71.6722},
	"sukkur":          {Lat: 27.7032, Lng: 68.8589},
	"jhang":           {Lat: 31.2682, Lng: 72.3181},
	"sheikhupura":     {Lat: 31.7131, Lng: 73.9783},
	"mardan":          {Lat: 34.1983, Lng: 72.0458},
	"gujrat":          {Lat: 32.5742, Lng: 74.0754},
	"kasur":           {Lat: 31.1156, Lng: 74.4467},
	"dera ghazi khan": {Lat: 30.0561, Lng: 70.6344},
	"sahiwal":         {Lat: 30.6641, Lng: 73.1016},
}

// Provinces maps each province or territory to its major cities.
var Provinces = map[string][]string{
	"Punjab": {
		"Lahore", "Faisalabad", "Rawalpindi", "Multan", "Gujranwala", "Sialkot",
		"Bahawalpur", "Sargodha", "Jhang", "Sheikhupura", "Rahim Yar Khan", "Gujrat",
		"Kasur", "Okara", "Sahiwal", "Wah Cantonment", "Mianwali", "Chiniot",
		"Kamoke", "Hafizabad", "Dera Ghazi Khan",
	},
	"Sindh": {
		"Karachi", "Hyderabad", "Sukkur", "Larkana", "Nawabshah", "Mirpur Khas",
		"Jacobabad", "Shikarpur", "Khairpur", "Dadu", "Tando Allahyar", "Tando Adam",
		"Badin", "Thatta", "Umerkot",
	},
	"Khyber Pakhtunkhwa": {
		"Peshawar", "Mardan", "Mingora", "Kohat", "Abbottabad", "Dera Ismail Khan",
		"Mansehra", "Swabi", "Nowshera", "Charsadda", "Bannu", "Haripur", "Chitral",
		"Batkhela", "Timergara",
	},
	"Balochistan": {
		"Quetta", "Turbat", "Khuzdar", "Chaman", "Hub", "Sibi", "Loralai",
		"Dera Murad Jamali", "Gwadar", "Dera Allah Yar", "Usta Muhammad", "Sui",
		"Saranan", "Kalat", "Mastung",
	},
	"Islamabad Capital Territory": {"Islamabad"},
	"Gilgit-Baltistan": {
		"Gilgit", "Skardu", "Chilas", "Astore", "Ghanche", "Diamer", "Hunza",
		"Nagar", "Shigar", "Kharmang",
	},
	"Azad Jammu & Kashmir": {
		"Muzaffarabad", "Mirpur", "Rawalakot", "Kotli", "Bhimber", "Bagh",
		"Hattian Bala", "Neelum", "Haveli", "Sudhnuti",
	},
}

var provinceOf = func() map[string]string {
	m := make(map[string]string)
	for province, cities := range Provinces {
		for _, c := range cities {
			m[NormalizeCity(c)] = province
		}
	}
	return m
}()

// NormalizeCity folds case and surrounding whitespace so "  lahore" and
// "Lahore" compare equal.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}

func SameCity(a, b string) bool {
	return NormalizeCity(a) == NormalizeCity(b)
}

// CityCentre returns the coordinates of a known city.
func CityCentre(city string) (types.Point, bool) {
	p, ok := cityCentres[NormalizeCity(city)]
	return p, ok
}

// ProvinceOf returns the province of a known city.
func ProvinceOf(city string) (string, bool) {
	p, ok := provinceOf[NormalizeCity(city)]
	return p, ok
}
