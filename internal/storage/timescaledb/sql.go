package timescaledb

import "sort"

const captureDatesSQL = `
SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS date,
       COUNT(*) AS count
FROM water_sensor_data
WHERE product_id = ? AND slave_id = ?
GROUP BY 1
ORDER BY 1 ASC`

const dailyTotalsSQL = `
SELECT product_id,
       slave_id,
       (array_agg(total_flow ORDER BY timestamp ASC))[1] AS first_total,
       (array_agg(total_flow ORDER BY timestamp DESC))[1] AS last_total,
       MAX(timestamp) AS last_seen
FROM water_sensor_data
WHERE timestamp >= ? AND timestamp <= ?
GROUP BY product_id, slave_id`

// sortByConsumption orders totals largest first, ties broken by partition.
func sortByConsumption(totals []DailyTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Consumption != totals[j].Consumption {
			return totals[i].Consumption > totals[j].Consumption
		}
		if totals[i].DeviceID != totals[j].DeviceID {
			return totals[i].DeviceID < totals[j].DeviceID
		}
		return totals[i].SlaveID < totals[j].SlaveID
	})
}
