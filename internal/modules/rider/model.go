// README: Rider profile record.
package rider

import "rideservice/internal/types"

type Rider struct {
	ID   types.ID
	Name string
	Home types.Point
}
