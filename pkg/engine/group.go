package engine

import "github.com/harrisonrobin/hubsync/pkg/model"

// Group collects tasks into work packets keyed by courier name and station.
// Packets appear in the order their key is first seen and keep member order.
func Group(tasks []model.Task) []model.WorkPacket {
	packets := make([]model.WorkPacket, 0)
	pos := make(map[model.PacketKey]int)
	for _, t := range tasks {
		key := model.KeyOf(t)
		i, ok := pos[key]
		if !ok {
			i = len(packets)
			pos[key] = i
			packets = append(packets, model.WorkPacket{
				Key:     key,
				Courier: t.Courier,
				Station: t.Station,
			})
		}
		packets[i].TotalPackages += t.PackageCount
		packets[i].Tasks = append(packets[i].Tasks, t)
	}
	for i := range packets {
		packets[i].Status = model.AggregateStatus(packets[i].Tasks)
	}
	return packets
}
