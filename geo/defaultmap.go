package geo

// DefaultMap returns the built-in ship layout: four rooms joined by four
// corridors, with a table obstacle in the cafeteria. Used by tests and as
// the out-of-the-box map when no map file is configured.
//
//	Cafeteria --- top corridor --- Weapons
//	    |                             |
//	left corridor             right corridor
//	    |                             |
//	 Reactor --- bottom corridor - Navigation
func DefaultMap() *Map {
	rect := func(x0, y0, x1, y1 float64) Polygon {
		return Polygon{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	}

	cafeteria := rect(50, 50, 350, 250)
	weapons := rect(650, 50, 950, 250)
	navigation := rect(650, 350, 950, 550)
	reactor := rect(50, 350, 350, 550)

	corridorTop := rect(350, 130, 650, 170)
	corridorRight := rect(780, 250, 820, 350)
	corridorBottom := rect(350, 430, 650, 470)
	corridorLeft := rect(180, 250, 220, 350)

	return &Map{
		WalkZones: []WalkZone{
			{Outer: cafeteria},
			{Outer: weapons},
			{Outer: navigation},
			{Outer: reactor},
			{Outer: corridorTop},
			{Outer: corridorRight},
			{Outer: corridorBottom},
			{Outer: corridorLeft},
		},
		LabeledZones: []LabeledZone{
			{Name: "Cafeteria", Polygon: cafeteria},
			{Name: "Weapons", Polygon: weapons},
			{Name: "Navigation", Polygon: navigation},
			{Name: "Reactor", Polygon: reactor},
		},
		Obstacles: []Obstacle{
			// Cafeteria table.
			{Min: Point{100, 80}, Max: Point{160, 130}, Radius: 10},
		},
		NavHints: []Point{
			{500, 150}, // top corridor
			{800, 300}, // right corridor
			{500, 450}, // bottom corridor
			{200, 300}, // left corridor
		},
	}
}
