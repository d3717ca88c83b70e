package parse

import (
	"strings"

	"astrobot-service/internal/domain/astro"
)

const indiaTZ = "Asia/Kolkata"

var cities = map[string]astro.Location{
	"mumbai":        {Name: "Mumbai", Lat: 19.0760, Lng: 72.8777, Timezone: indiaTZ},
	"delhi":         {Name: "Delhi", Lat: 28.7041, Lng: 77.1025, Timezone: indiaTZ},
	"new delhi":     {Name: "New Delhi", Lat: 28.6139, Lng: 77.2090, Timezone: indiaTZ},
	"bangalore":     {Name: "Bangalore", Lat: 12.9716, Lng: 77.5946, Timezone: indiaTZ},
	"bengaluru":     {Name: "Bengaluru", Lat: 12.9716, Lng: 77.5946, Timezone: indiaTZ},
	"chennai":       {Name: "Chennai", Lat: 13.0827, Lng: 80.2707, Timezone: indiaTZ},
	"kolkata":       {Name: "Kolkata", Lat: 22.5726, Lng: 88.3639, Timezone: indiaTZ},
	"hyderabad":     {Name: "Hyderabad", Lat: 17.3850, Lng: 78.4867, Timezone: indiaTZ},
	"pune":          {Name: "Pune", Lat: 18.5204, Lng: 73.8567, Timezone: indiaTZ},
	"ahmedabad":     {Name: "Ahmedabad", Lat: 23.0225, Lng: 72.5714, Timezone: indiaTZ},
	"jaipur":        {Name: "Jaipur", Lat: 26.9124, Lng: 75.7873, Timezone: indiaTZ},
	"lucknow":       {Name: "Lucknow", Lat: 26.8467, Lng: 80.9462, Timezone: indiaTZ},
	"kanpur":        {Name: "Kanpur", Lat: 26.4499, Lng: 80.3319, Timezone: indiaTZ},
	"nagpur":        {Name: "Nagpur", Lat: 21.1458, Lng: 79.0882, Timezone: indiaTZ},
	"indore":        {Name: "Indore", Lat: 22.7196, Lng: 75.8577, Timezone: indiaTZ},
	"thane":         {Name: "Thane", Lat: 19.2183, Lng: 72.9781, Timezone: indiaTZ},
	"bhopal":        {Name: "Bhopal", Lat: 23.2599, Lng: 77.4126, Timezone: indiaTZ},
	"visakhapatnam": {Name: "Visakhapatnam", Lat: 17.6868, Lng: 83.2185, Timezone: indiaTZ},
	"patna":         {Name: "Patna", Lat: 25.5941, Lng: 85.1376, Timezone: indiaTZ},
	"vadodara":      {Name: "Vadodara", Lat: 22.3072, Lng: 73.1812, Timezone: indiaTZ},
	"ludhiana":      {Name: "Ludhiana", Lat: 30.9010, Lng: 75.8573, Timezone: indiaTZ},
	"agra":          {Name: "Agra", Lat: 27.1767, Lng: 78.0081, Timezone: indiaTZ},
	"nashik":        {Name: "Nashik", Lat: 19.9975, Lng: 73.7898, Timezone: indiaTZ},
	"varanasi":      {Name: "Varanasi", Lat: 25.3176, Lng: 82.9739, Timezone: indiaTZ},
	"srinagar":      {Name: "Srinagar", Lat: 34.0837, Lng: 74.7973, Timezone: indiaTZ},
	"amritsar":      {Name: "Amritsar", Lat: 31.6340, Lng: 74.8723, Timezone: indiaTZ},
	"navi mumbai":   {Name: "Navi Mumbai", Lat: 19.0330, Lng: 73.0297, Timezone: indiaTZ},
	"prayagraj":     {Name: "Prayagraj", Lat: 25.4358, Lng: 81.8463, Timezone: indiaTZ},
	"allahabad":     {Name: "Allahabad", Lat: 25.4358, Lng: 81.8463, Timezone: indiaTZ},
	"ranchi":        {Name: "Ranchi", Lat: 23.3441, Lng: 85.3096, Timezone: indiaTZ},
	"coimbatore":    {Name: "Coimbatore", Lat: 11.0168, Lng: 76.9558, Timezone: indiaTZ},
	"gwalior":       {Name: "Gwalior", Lat: 26.2183, Lng: 78.1828, Timezone: indiaTZ},
}

// LookupCity finds a known city by name, ignoring case.
func LookupCity(name string) (astro.Location, bool) {
	loc, ok := cities[strings.ToLower(strings.TrimSpace(name))]
	return loc, ok
}

// City resolves a birth place. Names shorter than two letters are rejected;
// unknown names keep the typed name with the fallback city's coordinates.
func City(input string, fallback string) (astro.Location, error) {
	name := strings.TrimSpace(input)
	if len([]rune(name)) < 2 {
		return astro.Location{}, invalid(input, "city name too short")
	}
	if loc, ok := LookupCity(name); ok {
		return loc, nil
	}
	loc, ok := LookupCity(fallback)
	if !ok {
		loc = cities["mumbai"]
	}
	loc.Name = name
	return loc, nil
}

// Coordinates builds a location from a shared map pin.
func Coordinates(lat, lng float64, name string) astro.Location {
	if name == "" {
		name = "Shared location"
	}
	return astro.Location{Name: name, Lat: lat, Lng: lng, Timezone: indiaTZ}
}
