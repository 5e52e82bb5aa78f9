package airports

// builtin covers the major airports of the default region
var builtin = []Airport{
	{ICAO: "LTFM", Name: "İstanbul Havalimanı", City: "İstanbul", Lat: 41.2619, Lon: 28.7419, Elevation: 325, Type: "international"},
	{ICAO: "LTFJ", Name: "Sabiha Gökçen Havalimanı", City: "İstanbul", Lat: 40.8986, Lon: 29.3092, Elevation: 312, Type: "international"},
	{ICAO: "LTAC", Name: "Esenboğa Havalimanı", City: "Ankara", Lat: 40.1281, Lon: 32.9951, Elevation: 3125, Type: "international"},
	{ICAO: "LTBJ", Name: "Adnan Menderes Havalimanı", City: "İzmir", Lat: 38.2924, Lon: 27.1570, Elevation: 412, Type: "international"},
	{ICAO: "LTAI", Name: "Antalya Havalimanı", City: "Antalya", Lat: 36.8987, Lon: 30.8005, Elevation: 177, Type: "international"},
	{ICAO: "LTCG", Name: "Milas-Bodrum Havalimanı", City: "Muğla", Lat: 37.2506, Lon: 27.6643, Elevation: 21, Type: "international"},
	{ICAO: "LTFG", Name: "Dalaman Havalimanı", City: "Muğla", Lat: 36.7131, Lon: 28.7925, Elevation: 20, Type: "international"},
	{ICAO: "LTCF", Name: "Gazipaşa-Alanya Havalimanı", City: "Antalya", Lat: 36.2992, Lon: 32.3006, Elevation: 86, Type: "domestic"},
	{ICAO: "LTCK", Name: "Konya Havalimanı", City: "Konya", Lat: 37.9790, Lon: 32.5619, Elevation: 3392, Type: "domestic"},
	{ICAO: "LTCE", Name: "Adana Şakirpaşa Havalimanı", City: "Adana", Lat: 36.9822, Lon: 35.2804, Elevation: 65, Type: "international"},
	{ICAO: "LTCN", Name: "Hatay Havalimanı", City: "Hatay", Lat: 36.3628, Lon: 36.2824, Elevation: 246, Type: "international"},
	{ICAO: "LTCL", Name: "Çukurova Havalimanı", City: "Adana", Lat: 36.9822, Lon: 35.2806, Elevation: 20, Type: "domestic"},
	{ICAO: "LTAZ", Name: "Trabzon Havalimanı", City: "Trabzon", Lat: 40.9951, Lon: 39.7897, Elevation: 104, Type: "international"},
}
